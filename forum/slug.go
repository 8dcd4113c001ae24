package forum

import "strings"

// Slugify normalizes a title into a URL-safe slug: lowercase, runs of
// non-alphanumeric characters collapsed to single dashes, leading and
// trailing dashes trimmed. Titles that normalize to nothing yield "".
func Slugify(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	lastDash := true // suppress leading dash
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	return strings.TrimRight(b.String(), "-")
}

// topicSlug derives a topic's slug from its id and title. Titles that
// normalize to nothing fall back to the literal "topic"; the id prefix
// disambiguates collisions.
func topicSlug(tid int64, title string) string {
	slug := Slugify(title)
	if slug == "" {
		slug = "topic"
	}
	return formatInt(tid) + "/" + slug
}
