package forum

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Hello World  ", "hello-world"},
		{"Hello, World!", "hello-world"},
		{"???", ""},
		{"multiple   spaces", "multiple-spaces"},
		{"already-sluggy", "already-sluggy"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, expected %q", tc.in, got, tc.want)
		}
	}
}

func TestTopicSlugFallback(t *testing.T) {
	if got := topicSlug(12, "Hello World"); got != "12/hello-world" {
		t.Errorf("Expected 12/hello-world, got %q", got)
	}
	if got := topicSlug(13, "???"); got != "13/topic" {
		t.Errorf("Expected 13/topic, got %q", got)
	}
}
