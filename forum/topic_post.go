package forum

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/burrowbb/burrow/cfg"
	"github.com/burrowbb/burrow/telemetry"
)

// TopicPostRequest carries the inputs for publishing a new topic with its
// main post. FromQueue marks input arriving from the moderation queue,
// which already validated lengths and rate limits.
type TopicPostRequest struct {
	UID       int64    `json:"uid"`
	CID       int64    `json:"cid"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Timestamp int64    `json:"timestamp,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Handle    string   `json:"handle,omitempty"`
	IP        string   `json:"-"`
	Anonymous bool     `json:"anonymous,omitempty"`
	FromQueue bool     `json:"-"`
}

// TopicPostResult is the {topic, post} pair returned by PostNewTopic.
type TopicPostResult struct {
	Topic *Topic `json:"topic"`
	Post  *Post  `json:"post"`
}

// ReplyRequest carries the inputs for replying to a topic. Timestamp is
// reserved for trusted internal callers; replies arriving over the wire
// are always stamped server-side.
type ReplyRequest struct {
	UID       int64  `json:"uid"`
	TID       int64  `json:"tid"`
	Content   string `json:"content"`
	Timestamp int64  `json:"-"`
	ToPID     int64  `json:"toPid,omitempty"`
	Handle    string `json:"handle,omitempty"`
	IP        string `json:"-"`
	Anonymous bool   `json:"anonymous,omitempty"`
	FromQueue bool   `json:"-"`
}

// PostNewTopic validates and publishes a new topic with its main post.
func (f *Forum) PostNewTopic(req *TopicPostRequest) (*TopicPostResult, error) {
	started := time.Now()

	result, err := f.hooks.FireFilter("filter:topic.post", req)
	if err != nil {
		return nil, err
	}
	if r, ok := result.(*TopicPostRequest); ok {
		req = r
	}

	var (
		categoryExists bool
		canCreate      bool
		canTag         = true
		canSchedule    = true
		role           ActorRole
	)
	err = awaitAll(
		func() (err error) {
			categoryExists, err = f.categories.Exists(req.CID)
			return err
		},
		func() (err error) {
			canCreate, err = f.privileges.Can(PrivTopicsCreate, req.CID, req.UID)
			return err
		},
		func() (err error) {
			if len(req.Tags) == 0 {
				return nil
			}
			canTag, err = f.privileges.Can(PrivTopicsTag, req.CID, req.UID)
			return err
		},
		func() (err error) {
			// A caller-supplied timestamp is scheduling; the moderation
			// queue already vetted its requests.
			if req.Timestamp == 0 || req.FromQueue {
				return nil
			}
			canSchedule, err = f.privileges.Can(PrivTopicsSchedule, req.CID, req.UID)
			return err
		},
		func() (err error) {
			role, err = f.privileges.RoleOf(req.UID, req.CID)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	if !categoryExists {
		return nil, ErrNoCategory
	}
	if !canCreate || !canTag || !canSchedule {
		return nil, ErrNoPrivileges
	}

	title := strings.TrimSpace(req.Title)
	content := strings.TrimSpace(req.Content)
	isAdministrator := role == RoleAdministrator
	if !isAdministrator && !req.FromQueue {
		if err := checkTitle(title); err != nil {
			return nil, err
		}
		if err := checkContent(content); err != nil {
			return nil, err
		}
	}

	tags, err := f.tags.Filter(req.Tags, req.CID)
	if err != nil {
		return nil, err
	}
	if !isAdministrator {
		if err := f.tags.Validate(tags, req.CID); err != nil {
			return nil, err
		}
	}

	if !req.FromQueue && !isAdministrator {
		if err := f.users.IsReadyToPost(req.UID, req.CID); err != nil {
			return nil, err
		}
		allowed, err := f.users.CanPostContentWithLinks(req.UID, content)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, reputationError(cfg.Config.Post.MinRepPostLinks)
		}
	}

	if err := f.checkGuestHandle(req.UID, req.Handle); err != nil {
		return nil, err
	}

	tid, err := f.CreateTopic(&TopicCreateRequest{
		UID:       req.UID,
		CID:       req.CID,
		Title:     escapeTitle(title),
		Timestamp: req.Timestamp,
		Tags:      tags,
	})
	if err != nil {
		return nil, err
	}
	topic, err := f.getTopic(tid)
	if err != nil {
		return nil, err
	}

	post, err := f.CreatePost(&PostCreateRequest{
		UID:       req.UID,
		TID:       tid,
		Content:   content,
		Timestamp: topic.Timestamp,
		IP:        req.IP,
		Handle:    req.Handle,
		Anonymous: req.Anonymous,
		IsMain:    true,
	})
	if err != nil {
		return nil, err
	}
	if err := f.store.SetObjectField(topicKey(tid), "mainPid", post.PID); err != nil {
		return nil, err
	}
	topic.MainPID = post.PID

	post, err = f.onNewPost(post, req.Handle)
	if err != nil {
		return nil, err
	}

	if err := f.autoFollow(tid, req.UID, func(s UserSettings) bool { return s.FollowTopicsOnCreate }); err != nil {
		return nil, err
	}

	topic.Unreplied = true
	topic.Index = 0
	topic.MainPost = post

	telemetry.TopicsCreatedTotal.With(formatInt(req.CID)).Inc()
	telemetry.PublishDurationSeconds.With("topic.post").Observe(time.Since(started).Seconds())
	f.hooks.FireAction("action:topic.post", &TopicPostResult{Topic: topic, Post: post})

	if !topic.Scheduled {
		if err := f.notifications.NotifyTagFollowers(topic, tags, req.UID); err != nil {
			log.Warn().Err(err).Int64("tid", tid).Msg("Unable to notify tag followers")
		}
		if err := f.notifications.NotifyCategoryFollowers(f.categories, topic); err != nil {
			log.Warn().Err(err).Int64("tid", tid).Msg("Unable to notify category followers")
		}
		if err := f.notifications.NotifyAuthorFollowers(topic); err != nil {
			log.Warn().Err(err).Int64("tid", tid).Msg("Unable to notify author followers")
		}
	}

	return &TopicPostResult{Topic: topic, Post: post}, nil
}

// Reply validates and publishes a reply to an existing topic.
func (f *Forum) Reply(req *ReplyRequest) (*Post, error) {
	started := time.Now()

	result, err := f.hooks.FireFilter("filter:topic.reply", req)
	if err != nil {
		return nil, err
	}
	if r, ok := result.(*ReplyRequest); ok {
		req = r
	}

	var (
		topic           *Topic
		isAdministrator bool
	)
	err = awaitAll(
		func() (err error) {
			topic, err = f.getTopic(req.TID)
			return err
		},
		func() (err error) {
			isAdministrator, err = f.privileges.IsAdministrator(req.UID)
			return err
		},
	)
	if err != nil {
		return nil, err
	}

	if err := f.canReply(req, topic); err != nil {
		return nil, err
	}

	content := strings.TrimSpace(req.Content)
	if !req.FromQueue && !isAdministrator {
		if err := f.users.IsReadyToPost(req.UID, topic.CID); err != nil {
			return nil, err
		}
		if err := checkContent(content); err != nil {
			return nil, err
		}
		allowed, err := f.users.CanPostContentWithLinks(req.UID, content)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, reputationError(cfg.Config.Post.MinRepPostLinks)
		}
	}

	if err := f.checkGuestHandle(req.UID, req.Handle); err != nil {
		return nil, err
	}

	timestamp := req.Timestamp
	if topic.Scheduled {
		// Replies must not precede the topic's own effective time.
		timestamp = topic.LastPostTime + 1
	}

	post, err := f.CreatePost(&PostCreateRequest{
		UID:       req.UID,
		TID:       req.TID,
		Content:   content,
		Timestamp: timestamp,
		ToPID:     req.ToPID,
		IP:        req.IP,
		Handle:    req.Handle,
		Anonymous: req.Anonymous,
	})
	if err != nil {
		return nil, err
	}

	post, err = f.onNewPost(post, req.Handle)
	if err != nil {
		return nil, err
	}

	if err := f.autoFollow(req.TID, req.UID, func(s UserSettings) bool { return s.FollowTopicsOnReply }); err != nil {
		return nil, err
	}
	if err := f.users.SetLastOnline(req.UID); err != nil {
		return nil, err
	}

	anonymousGuest := req.UID == 0 && req.Handle == ""
	if !anonymousGuest || cfg.Config.Guest.AllowReplyNotifications {
		if err := f.notifications.NotifyTopicFollowers(topic, post, post.Content); err != nil {
			log.Warn().Err(err).Int64("tid", req.TID).Msg("Unable to notify topic followers")
		}
	}

	telemetry.PostsCreatedTotal.With(formatInt(topic.CID)).Inc()
	telemetry.PublishDurationSeconds.With("topic.reply").Observe(time.Since(started).Seconds())
	f.hooks.FireAction("action:topic.reply", post)

	return post, nil
}

// canReply is the reply permission gate. Check order decides which error
// surfaces first: locked > deleted > schedule capability > reply
// capability.
func (f *Forum) canReply(req *ReplyRequest, topic *Topic) error {
	if topic == nil {
		return ErrNoTopic
	}
	var (
		canReply    bool
		canSchedule bool
		adminOrMod  bool
	)
	err := awaitAll(
		func() (err error) {
			canReply, err = f.privileges.Can(PrivTopicsReply, topic.CID, req.UID)
			return err
		},
		func() (err error) {
			canSchedule, err = f.privileges.Can(PrivTopicsSchedule, topic.CID, req.UID)
			return err
		},
		func() (err error) {
			adminOrMod, err = f.privileges.IsAdminOrMod(topic.CID, req.UID)
			return err
		},
	)
	if err != nil {
		return err
	}
	if topic.Locked && !adminOrMod {
		return ErrTopicLocked
	}
	if topic.Deleted && !topic.Scheduled && !adminOrMod {
		return ErrTopicDeleted
	}
	if topic.Scheduled && !canSchedule {
		return ErrNoPrivileges
	}
	if !canReply {
		return ErrNoPrivileges
	}
	return nil
}

// onNewPost is the common post-publish enrichment shared by PostNewTopic
// and Reply.
func (f *Forum) onNewPost(post *Post, handle string) (*Post, error) {
	if err := f.markTopicRead(post.TID, post.UID); err != nil {
		return nil, err
	}

	var (
		author      *UserInfo
		topicFields *TopicFields
	)
	err := awaitAll(
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

	newLinks, err := f.SyncBacklinks(post)
	if err != nil {
		return nil, err
	}
	if len(newLinks) > 0 && (topicFields == nil || !topicFields.Scheduled) {
		if err := f.notifications.NotifyBacklinks(post, newLinks); err != nil {
			log.Warn().Err(err).Int64("pid", post.PID).Msg("Unable to notify backlinked topic owners")
		}
	}
	post, err = f.ParsePost(post)
	if err != nil {
		return nil, err
	}

	post.User = author
	post.Topic = topicFields
	post.Index = 1
	post.Votes = 0
	post.Bookmarked = false
	post.SelfPost = false
	post.DisplayEditTools = true
	post.DisplayDeleteTools = true
	post.DisplayModeratorTools = true
	post.DisplayMoveTools = true
	post.TimestampISO = toISOString(post.Timestamp)
	if post.UID == 0 && handle != "" && post.User != nil {
		override := *post.User
		override.Username = handle
		override.DisplayName = handle
		post.User = &override
	}
	return post, nil
}

// markTopicRead records that the author has seen the topic up to now.
func (f *Forum) markTopicRead(tid, uid int64) error {
	if uid <= 0 {
		return nil
	}
	return f.store.SortedSetAdd("uid:"+formatInt(uid)+":tids_read", nowMillis(), formatInt(tid))
}

func (f *Forum) autoFollow(tid, uid int64, wants func(UserSettings) bool) error {
	if uid <= 0 {
		return nil
	}
	settings, err := f.users.GetSettings(uid)
	if err != nil {
		return err
	}
	if !wants(settings) {
		return nil
	}
	return f.notifications.Follow(tid, uid)
}

// checkGuestHandle validates a guest display name: guests only, length
// bounded, and not colliding with a registered username.
func (f *Forum) checkGuestHandle(uid int64, handle string) error {
	if handle == "" || uid != 0 {
		return nil
	}
	if !cfg.Config.Guest.AllowHandles {
		return ErrGuestHandleInvalid
	}
	if len(handle) > cfg.Config.Guest.MaximumHandleLength {
		return ErrGuestHandleInvalid
	}
	taken, err := f.users.ExistsBySlug(Slugify(handle))
	if err != nil {
		return err
	}
	if taken {
		return ErrUsernameTaken
	}
	return nil
}

func checkTitle(title string) error {
	plain := stripHTMLTags(title)
	if len(plain) < cfg.Config.Post.MinimumTitleLength {
		return lengthError(ErrTitleTooShort, cfg.Config.Post.MinimumTitleLength)
	}
	if len(plain) > cfg.Config.Post.MaximumTitleLength {
		return lengthError(ErrTitleTooLong, cfg.Config.Post.MaximumTitleLength)
	}
	return nil
}

func checkContent(content string) error {
	plain := stripHTMLTags(content)
	if len(plain) < cfg.Config.Post.MinimumPostLength {
		return lengthError(ErrContentTooShort, cfg.Config.Post.MinimumPostLength)
	}
	if len(plain) > cfg.Config.Post.MaximumPostLength {
		return lengthError(ErrContentTooLong, cfg.Config.Post.MaximumPostLength)
	}
	return nil
}
