package cfg

import (
	"os"
	"path/filepath"
	"testing"
)

func withTestConfig(t *testing.T, mutate func(*Configuration)) {
	t.Helper()
	original := Config
	t.Cleanup(func() { Config = original })

	copied := *original
	Config = &copied
	if mutate != nil {
		mutate(Config)
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	withTestConfig(t, nil)
	if err := Validate(); err != nil {
		t.Errorf("Default configuration should validate: %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"bad http port", func(c *Configuration) { c.HTTP.Port = 0 }},
		{"zero min post length", func(c *Configuration) { c.Post.MinimumPostLength = 0 }},
		{"max below min post length", func(c *Configuration) {
			c.Post.MinimumPostLength = 100
			c.Post.MaximumPostLength = 10
		}},
		{"max below min title length", func(c *Configuration) {
			c.Post.MinimumTitleLength = 100
			c.Post.MaximumTitleLength = 10
		}},
		{"negative post delay", func(c *Configuration) { c.Post.PostDelaySeconds = -1 }},
		{"nats without url", func(c *Configuration) { c.Signal.Backend = SignalNats }},
		{"kafka without brokers", func(c *Configuration) { c.Signal.Backend = SignalKafka }},
		{"unknown signal backend", func(c *Configuration) { c.Signal.Backend = "carrier-pigeon" }},
		{"zero cache size", func(c *Configuration) { c.Cache.PostCacheSize = 0 }},
		{"zero translator timeout", func(c *Configuration) { c.Translator.TimeoutMS = 0 }},
		{"zero memtable count", func(c *Configuration) { c.Store.MemTableCount = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withTestConfig(t, tc.mutate)
			if err := Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	withTestConfig(t, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
node_id = 7
data_dir = "` + filepath.ToSlash(filepath.Join(dir, "data")) + `"

[post]
minimum_post_length = 2

[moderation]
banned_words = ["spam", "scam"]

[signal]
backend = "local"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if err := Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if Config.NodeID != 7 {
		t.Errorf("Expected node_id 7, got %d", Config.NodeID)
	}
	if Config.Post.MinimumPostLength != 2 {
		t.Errorf("Expected minimum_post_length 2, got %d", Config.Post.MinimumPostLength)
	}
	if len(Config.Moderation.BannedWords) != 2 {
		t.Errorf("Expected 2 banned words, got %d", len(Config.Moderation.BannedWords))
	}
	if _, err := os.Stat(Config.DataDir); err != nil {
		t.Errorf("Data directory not created: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	withTestConfig(t, func(c *Configuration) {
		c.NodeID = 3
		c.DataDir = filepath.Join(t.TempDir(), "data")
	})

	if err := Load(filepath.Join(t.TempDir(), "nope.toml")); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if Config.HTTP.Port != 4567 {
		t.Errorf("Expected default port 4567, got %d", Config.HTTP.Port)
	}
}
