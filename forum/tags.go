package forum

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"

	"github.com/burrowbb/burrow/store"
)

// Tags manages topic tags: cleaning, per-category whitelists and the
// usage indexes behind tag pages.
type Tags struct {
	store store.Store
}

// NewTags creates the tag collaborator.
func NewTags(s store.Store) *Tags {
	return &Tags{store: s}
}

// Clean normalizes a raw tag to its canonical form.
func (t *Tags) Clean(tag string) string {
	return Slugify(strings.TrimSpace(tag))
}

// Filter cleans and dedupes tags and drops anything the category's
// whitelist rejects. Whitelist patterns use glob syntax, so "release-*"
// admits every release tag.
func (t *Tags) Filter(tags []string, cid int64) ([]string, error) {
	patterns, err := t.whitelistGlobs(cid)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		tag := t.Clean(raw)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		if len(patterns) > 0 && !matchesAny(patterns, tag) {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out, nil
}

// Validate enforces the category's tag count bounds on an already
// filtered tag list.
func (t *Tags) Validate(tags []string, cid int64) error {
	fields, err := t.store.GetObjectFields(categoryKey(cid), []string{"min_tags", "max_tags"})
	if err != nil {
		return err
	}
	minTags := toInt64(fields["min_tags"])
	maxTags := toInt64(fields["max_tags"])
	if minTags > 0 && int64(len(tags)) < minTags {
		return &Error{Code: "invalid-tags", Message: "Topics in this category require at least " + formatInt(minTags) + " tag(s)"}
	}
	if maxTags > 0 && int64(len(tags)) > maxTags {
		return &Error{Code: "invalid-tags", Message: "Topics in this category allow at most " + formatInt(maxTags) + " tag(s)"}
	}
	return nil
}

// Create records tag membership for a topic and refreshes the global
// usage counts.
func (t *Tags) Create(tags []string, tid, timestamp int64) error {
	tidStr := formatInt(tid)
	for _, tag := range tags {
		if err := t.store.SortedSetAdd("tag:"+tag+":topics", timestamp, tidStr); err != nil {
			return err
		}
		count, err := t.store.SortedSetCard("tag:" + tag + ":topics")
		if err != nil {
			return err
		}
		if err := t.store.SortedSetAdd("tags:topic:count", count, tag); err != nil {
			return err
		}
	}
	return nil
}

// UpdateTopicTags replaces a topic's tag set. The stored "tags" field is
// the comma-joined canonical list.
func (t *Tags) UpdateTopicTags(tid int64, tags []string) error {
	old, err := t.TopicTags(tid)
	if err != nil {
		return err
	}
	tidStr := formatInt(tid)
	for _, tag := range old {
		if err := t.store.SortedSetRemove("tag:"+tag+":topics", tidStr); err != nil {
			return err
		}
	}
	if err := t.store.SetObjectField(topicKey(tid), "tags", strings.Join(tags, ",")); err != nil {
		return err
	}
	topic, err := t.store.GetObjectFields(topicKey(tid), []string{"timestamp"})
	if err != nil {
		return err
	}
	return t.Create(tags, tid, toInt64(topic["timestamp"]))
}

// TopicTags returns a topic's tags in canonical form.
func (t *Tags) TopicTags(tid int64) ([]string, error) {
	fields, err := t.store.GetObjectFields(topicKey(tid), []string{"tags"})
	if err != nil {
		return nil, err
	}
	raw := toString(fields["tags"])
	if raw == "" {
		return nil, nil
	}
	return strings.Split(raw, ","), nil
}

// TopicTagObjects returns a topic's tags with their global usage counts,
// for topic payloads.
func (t *Tags) TopicTagObjects(tid int64) ([]TagObject, error) {
	tags, err := t.TopicTags(tid)
	if err != nil {
		return nil, err
	}
	objects := make([]TagObject, 0, len(tags))
	for _, tag := range tags {
		score, _, err := t.store.SortedSetScore("tags:topic:count", tag)
		if err != nil {
			return nil, err
		}
		objects = append(objects, TagObject{Value: tag, Score: score})
	}
	return objects, nil
}

func (t *Tags) whitelistGlobs(cid int64) ([]glob.Glob, error) {
	fields, err := t.store.GetObjectFields(categoryKey(cid), []string{"tag_whitelist"})
	if err != nil {
		return nil, err
	}
	raw := toString(fields["tag_whitelist"])
	if raw == "" {
		return nil, nil
	}
	var patterns []glob.Glob
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			log.Warn().Err(err).Int64("cid", cid).Str("pattern", p).Msg("Skipping bad tag whitelist pattern")
			continue
		}
		patterns = append(patterns, g)
	}
	return patterns, nil
}

func matchesAny(patterns []glob.Glob, tag string) bool {
	for _, g := range patterns {
		if g.Match(tag) {
			return true
		}
	}
	return false
}
