package forum

import (
	"github.com/burrowbb/burrow/cfg"
	"github.com/burrowbb/burrow/telemetry"
)

// PostCreateRequest carries the inputs for CreatePost. UID zero is a
// guest. A zero Timestamp means now.
type PostCreateRequest struct {
	UID       int64
	TID       int64
	Content   string
	Timestamp int64
	ToPID     int64
	IP        string
	Handle    string
	Anonymous bool
	IsMain    bool
}

// CreatePost persists a new post record and fans out the denormalized
// index writes. Callers are responsible for content validation and the
// reply permission gate; this layer only enforces referential integrity.
func (f *Forum) CreatePost(req *PostCreateRequest) (*Post, error) {
	if req.UID < 0 {
		return nil, ErrInvalidUID
	}
	if err := f.checkToPid(req.ToPID, req.UID); err != nil {
		return nil, err
	}

	pid, err := f.store.Incr("nextPid")
	if err != nil {
		return nil, err
	}
	timestamp := req.Timestamp
	if timestamp == 0 {
		timestamp = nowMillis()
	}
	post := &Post{
		PID:       pid,
		UID:       req.UID,
		TID:       req.TID,
		Content:   req.Content,
		Timestamp: timestamp,
		ToPID:     req.ToPID,
		Anonymous: req.Anonymous,
	}
	if cfg.Config.Post.TrackIPPerPost {
		post.IP = req.IP
	}
	if req.UID == 0 && req.Handle != "" {
		post.Handle = req.Handle
	}
	if f.filter.Flag(post.Content) {
		post.ContentFlag = true
		telemetry.FlaggedContentTotal.Inc()
	}

	result, err := f.hooks.FireFilter("filter:post.create", post)
	if err != nil {
		return nil, err
	}
	if p, ok := result.(*Post); ok {
		post = p
	}

	if err := f.store.SetObject(postKey(post.PID), postToFields(post)); err != nil {
		return nil, err
	}
	f.existsFilter.Add(post.PID)

	topic, err := f.getTopic(post.TID)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return nil, ErrNoTopic
	}
	post.CID = topic.CID
	if err := f.store.SetObjectField(postKey(post.PID), "cid", topic.CID); err != nil {
		return nil, err
	}

	plan := NewCommitPlan("post.create")
	plan.Add("index-post", func() error {
		return f.store.SortedSetAdd("posts:pid", post.Timestamp, formatInt(post.PID))
	})
	plan.Add("post-counter", func() error {
		_, err := f.store.Incr("postCount")
		return err
	})
	plan.Add("user-on-post", func() error {
		return f.users.OnNewPostMade(post)
	})
	plan.Add("topic-on-post", func() error {
		return f.topicOnNewPostMade(topic, post)
	})
	plan.Add("category-on-post", func() error {
		return f.categories.OnNewPostMade(topic.CID, topic.Pinned, post)
	})
	plan.Add("group-on-post", func() error {
		return f.groups.OnNewPostMade(post)
	})
	plan.AddIf(post.ToPID > 0, "reply-index", func() error {
		return f.addReplyTo(post)
	})
	plan.Add("uploads-sync", func() error {
		return f.SyncUploads(post)
	})
	if err := plan.Run(); err != nil {
		return nil, err
	}

	result, err = f.hooks.FireFilter("filter:post.get", post)
	if err != nil {
		return nil, err
	}
	if p, ok := result.(*Post); ok {
		post = p
	}
	post.IsMain = req.IsMain

	snapshot := *post
	f.hooks.FireAction("action:post.save", &snapshot)
	return post, nil
}

// checkToPid verifies the parent post reference. Deleted parents are only
// valid targets for actors holding the view-deleted capability.
func (f *Forum) checkToPid(toPid, uid int64) error {
	if toPid == 0 {
		return nil
	}
	exists, err := f.postExists(toPid)
	if err != nil {
		return err
	}
	if !exists {
		return ErrInvalidPID
	}
	fields, err := f.store.GetObjectFields(postKey(toPid), []string{"deleted"})
	if err != nil {
		return err
	}
	if !toBool(fields["deleted"]) {
		return nil
	}
	canView, err := f.privileges.Can(PrivPostsViewDeleted, 0, uid)
	if err != nil {
		return err
	}
	if !canView {
		return ErrInvalidPID
	}
	return nil
}

// addReplyTo links the post into its parent's reply index and counter.
func (f *Forum) addReplyTo(post *Post) error {
	if err := f.store.SortedSetAdd("pid:"+formatInt(post.ToPID)+":replies", post.Timestamp, formatInt(post.PID)); err != nil {
		return err
	}
	_, err := f.store.IncrObjectField(postKey(post.ToPID), "replies", 1)
	return err
}

// topicOnNewPostMade maintains the owning topic's denormalized state for
// a new post.
func (f *Forum) topicOnNewPostMade(topic *Topic, post *Post) error {
	pidStr := formatInt(post.PID)
	if err := f.store.SortedSetAdd("tid:"+formatInt(topic.TID)+":posts", post.Timestamp, pidStr); err != nil {
		return err
	}
	if _, err := f.store.IncrObjectField(topicKey(topic.TID), "postcount", 1); err != nil {
		return err
	}
	return f.store.SetObjectField(topicKey(topic.TID), "lastposttime", post.Timestamp)
}
