package forum

import (
	"github.com/burrowbb/burrow/store"
)

// Categories is the category-subsystem collaborator: existence checks and
// the denormalized per-category post indexes.
type Categories struct {
	store store.Store
}

// NewCategories creates the category collaborator.
func NewCategories(s store.Store) *Categories {
	return &Categories{store: s}
}

// Exists reports whether the category record is present.
func (c *Categories) Exists(cid int64) (bool, error) {
	if cid <= 0 {
		return false, nil
	}
	return c.store.Exists(categoryKey(cid))
}

// OnNewPostMade maintains the per-category indexes for a freshly created
// post. Pinned topics keep their position, so they skip the recent update.
func (c *Categories) OnNewPostMade(cid int64, pinned bool, post *Post) error {
	cidStr := formatInt(cid)
	if err := c.store.SortedSetAdd("cid:"+cidStr+":pids", post.Timestamp, formatInt(post.PID)); err != nil {
		return err
	}
	if _, err := c.store.IncrObjectField(categoryKey(cid), "post_count", 1); err != nil {
		return err
	}
	if !pinned {
		return c.UpdateRecentTid(cid, post.TID)
	}
	return nil
}

// UpdateRecentTid bumps the topic in the category's recency index.
func (c *Categories) UpdateRecentTid(cid, tid int64) error {
	return c.store.SortedSetAdd("cid:"+formatInt(cid)+":recent_tids", nowMillis(), formatInt(tid))
}

// Followers returns the uids following the category.
func (c *Categories) Followers(cid int64) ([]int64, error) {
	members, err := c.store.SortedSetRange("cid:"+formatInt(cid)+":followers", 0, -1)
	if err != nil {
		return nil, err
	}
	uids := make([]int64, 0, len(members))
	for _, m := range members {
		uids = append(uids, toInt64(m))
	}
	return uids, nil
}
