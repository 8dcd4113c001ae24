package forum

import (
	"github.com/burrowbb/burrow/store"
)

// Groups maintains per-group post indexes so group pages can show the
// latest posts by members.
type Groups struct {
	store store.Store
}

// NewGroups creates the group collaborator.
func NewGroups(s store.Store) *Groups {
	return &Groups{store: s}
}

// OnNewPostMade adds the post to every group the author belongs to.
// Guests belong to no groups.
func (g *Groups) OnNewPostMade(post *Post) error {
	if post.UID <= 0 {
		return nil
	}
	groups, err := g.store.SortedSetRange("uid:"+formatInt(post.UID)+":groups", 0, -1)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return nil
	}
	keys := make([]string, 0, len(groups))
	for _, name := range groups {
		keys = append(keys, "group:"+name+":member:pids")
	}
	return g.store.SortedSetsAdd(keys, post.Timestamp, formatInt(post.PID))
}
