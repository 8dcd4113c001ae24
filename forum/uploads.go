package forum

import (
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var uploadPattern = regexp.MustCompile(`\]\(/assets/uploads/(files/[^\s\)]+)\)`)

// SyncUploads reconciles the uploads referenced by a post's content with
// the stored upload index, so orphaned files can be garbage collected.
// Upload paths are indexed under a stable hash to keep keys short.
func (f *Forum) SyncUploads(post *Post) error {
	referenced := make(map[string]string)
	for _, m := range uploadPattern.FindAllStringSubmatch(post.Content, -1) {
		path := strings.TrimSpace(m[1])
		if path == "" {
			continue
		}
		referenced[uploadHash(path)] = path
	}

	pidStr := formatInt(post.PID)
	key := "pid:" + pidStr + ":uploads"
	existing, err := f.store.SortedSetRange(key, 0, -1)
	if err != nil {
		return err
	}
	current := make(map[string]struct{}, len(existing))
	for _, h := range existing {
		current[h] = struct{}{}
	}

	now := nowMillis()
	for hash, path := range referenced {
		if _, ok := current[hash]; ok {
			delete(current, hash)
			continue
		}
		if err := f.store.SortedSetAdd(key, now, hash); err != nil {
			return err
		}
		if err := f.store.SortedSetAdd("upload:"+hash+":pids", now, pidStr); err != nil {
			return err
		}
		if err := f.store.SetObjectField("upload:"+hash, "path", path); err != nil {
			return err
		}
	}
	for hash := range current {
		if err := f.store.SortedSetRemove(key, hash); err != nil {
			return err
		}
		if err := f.store.SortedSetRemove("upload:"+hash+":pids", pidStr); err != nil {
			return err
		}
	}
	return nil
}

func uploadHash(path string) string {
	return formatUint(xxhash.Sum64String(path))
}
