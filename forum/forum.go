// Package forum implements the content-publication core: creating topics
// and posts, replying, editing, and the denormalized indexes those
// operations maintain. Records live in the store collaborator; this
// package owns ordering and consistency of the multi-step writes.
package forum

import (
	"github.com/burrowbb/burrow/cfg"
	"github.com/burrowbb/burrow/hooks"
	"github.com/burrowbb/burrow/notify"
	"github.com/burrowbb/burrow/store"
)

// Forum ties the publication orchestrators to their collaborators.
type Forum struct {
	store        store.Store
	hooks        *hooks.Bus
	filter       *ContentFilter
	postCache    *PostCache
	existsFilter *store.ExistsFilter

	users         *Users
	categories    *Categories
	groups        *Groups
	tags          *Tags
	notifications *Notifications
	privileges    *Privileges
	diffs         *Diffs
}

// New wires up the forum core. The signal bus may be nil in tests; cache
// invalidation then stays process-local.
func New(s store.Store, h *hooks.Bus, bus notify.Bus) (*Forum, error) {
	postCache, err := NewPostCache(cfg.Config.Cache.PostCacheSize, bus)
	if err != nil {
		return nil, err
	}
	diffs, err := NewDiffs(s)
	if err != nil {
		return nil, err
	}
	// Pids at or below the persisted watermark predate this process; the
	// filter only vouches for ids it saw allocated.
	pidFloor, err := s.CounterValue("nextPid")
	if err != nil {
		return nil, err
	}
	f := &Forum{
		store:         s,
		hooks:         h,
		filter:        NewContentFilter(cfg.Config.Moderation.BannedWords),
		postCache:     postCache,
		existsFilter:  store.NewExistsFilter(pidFloor),
		users:         NewUsers(s),
		categories:    NewCategories(s),
		groups:        NewGroups(s),
		tags:          NewTags(s),
		notifications: NewNotifications(s, h),
		privileges:    NewPrivileges(s),
		diffs:         diffs,
	}
	return f, nil
}

// Hooks exposes the extension bus for plugin registration.
func (f *Forum) Hooks() *hooks.Bus {
	return f.hooks
}

// Store exposes the record store, mainly for metrics collection.
func (f *Forum) Store() store.Store {
	return f.store
}

// Filter exposes the banned-word filter.
func (f *Forum) Filter() *ContentFilter {
	return f.filter
}

// getPost loads the full post record.
func (f *Forum) getPost(pid int64) (*Post, error) {
	fields, err := f.store.GetObject(postKey(pid))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return postFromFields(fields), nil
}

// getTopic loads the full topic record.
func (f *Forum) getTopic(tid int64) (*Topic, error) {
	fields, err := f.store.GetObject(topicKey(tid))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return topicFromFields(fields), nil
}

// getTopicFields loads the restricted topic projection embedded in post
// views.
func (f *Forum) getTopicFields(tid int64) (*TopicFields, error) {
	topic, err := f.getTopic(tid)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return nil, nil
	}
	tags, err := f.tags.TopicTagObjects(tid)
	if err != nil {
		return nil, err
	}
	return &TopicFields{
		TID:       topic.TID,
		UID:       topic.UID,
		CID:       topic.CID,
		MainPID:   topic.MainPID,
		Title:     topic.Title,
		Slug:      topic.Slug,
		PostCount: topic.PostCount,
		Scheduled: topic.Scheduled,
		Tags:      tags,
	}, nil
}

// GetPostData loads a post with its author and topic projections and the
// rendered content, for read endpoints.
func (f *Forum) GetPostData(pid int64) (*Post, error) {
	post, err := f.getPost(pid)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrNoPost
	}
	var (
		author      *UserInfo
		topicFields *TopicFields
	)
	err = awaitAll(
		func() (err error) {
			author, err = f.users.GetUserFields(post.UID)
			return err
		},
		func() (err error) {
			topicFields, err = f.getTopicFields(post.TID)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	post.User = author
	post.Topic = topicFields
	if topicFields != nil {
		post.IsMain = post.PID == topicFields.MainPID
	}
	post.TimestampISO = toISOString(post.Timestamp)
	if post.Edited != 0 {
		post.EditedISO = toISOString(post.Edited)
	}
	return f.ParsePost(post)
}

// postExists uses the in-memory filter as a negative fast path before
// hitting the store.
func (f *Forum) postExists(pid int64) (bool, error) {
	if !f.existsFilter.MightExist(pid) {
		return false, nil
	}
	return f.store.Exists(postKey(pid))
}
