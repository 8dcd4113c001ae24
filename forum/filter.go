package forum

import "strings"

// ContentFilter flags content containing banned words. Matching is
// whole-token and case-insensitive; "shitty" does not match "shit". The
// filter is advisory: flagged content is still stored, carrying a marker
// for downstream moderation.
type ContentFilter struct {
	banned map[string]struct{}
}

// NewContentFilter builds a filter from the banned word list. Words are
// lowercased; duplicates are fine.
func NewContentFilter(words []string) *ContentFilter {
	banned := make(map[string]struct{}, len(words))
	for _, w := range words {
		banned[strings.ToLower(w)] = struct{}{}
	}
	return &ContentFilter{banned: banned}
}

// Flag reports whether any whitespace-separated token of content exactly
// matches a banned word. Pure and deterministic.
func (f *ContentFilter) Flag(content string) bool {
	if len(f.banned) == 0 {
		return false
	}
	for _, word := range strings.Fields(strings.ToLower(content)) {
		if _, ok := f.banned[word]; ok {
			return true
		}
	}
	return false
}
