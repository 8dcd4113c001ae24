package forum

import (
	"regexp"

	"github.com/burrowbb/burrow/store"
)

var (
	postLinkPattern  = regexp.MustCompile(`/post/(\d+)`)
	topicLinkPattern = regexp.MustCompile(`/topic/(\d+)`)
)

// SyncBacklinks reconciles the set of topics a post links to against its
// stored backlink index. Newly linked topics get a reverse entry so their
// pages can show "referenced by" links. Returns the newly linked topic ids;
// re-syncing unchanged content returns none, so notification fan-out fires
// once per new link.
func (f *Forum) SyncBacklinks(post *Post) ([]string, error) {
	linked := extractBacklinkTids(f.store, post.Content)
	pidStr := formatInt(post.PID)
	key := "pid:" + pidStr + ":backlinks"

	existing, err := f.store.SortedSetRange(key, 0, -1)
	if err != nil {
		return nil, err
	}
	current := make(map[string]struct{}, len(existing))
	for _, tid := range existing {
		current[tid] = struct{}{}
	}

	now := nowMillis()
	var added []string
	for tid := range linked {
		if _, ok := current[tid]; ok {
			delete(current, tid)
			continue
		}
		if err := f.store.SortedSetAdd(key, now, tid); err != nil {
			return added, err
		}
		if err := f.store.SortedSetAdd("tid:"+tid+":backlinks", now, pidStr); err != nil {
			return added, err
		}
		added = append(added, tid)
	}
	// Whatever is left in current is no longer referenced.
	for tid := range current {
		if err := f.store.SortedSetRemove(key, tid); err != nil {
			return added, err
		}
		if err := f.store.SortedSetRemove("tid:"+tid+":backlinks", pidStr); err != nil {
			return added, err
		}
	}
	return added, nil
}

// extractBacklinkTids finds topic ids referenced by internal links in the
// content. Post links are resolved to their parent topic.
func extractBacklinkTids(s store.Store, content string) map[string]struct{} {
	tids := make(map[string]struct{})
	for _, m := range topicLinkPattern.FindAllStringSubmatch(content, -1) {
		tids[m[1]] = struct{}{}
	}
	for _, m := range postLinkPattern.FindAllStringSubmatch(content, -1) {
		fields, err := s.GetObjectFields("post:"+m[1], []string{"tid"})
		if err != nil {
			continue
		}
		if tid := toInt64(fields["tid"]); tid > 0 {
			tids[formatInt(tid)] = struct{}{}
		}
	}
	return tids
}
