package forum

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/burrowbb/burrow/cfg"
	"github.com/burrowbb/burrow/telemetry"
)

// PostEditRequest carries the inputs for EditPost. A zero Timestamp means
// no timestamp was supplied. Tags nil means the tag list is untouched;
// an empty non-nil slice clears it.
type PostEditRequest struct {
	UID       int64    `json:"uid"`
	PID       int64    `json:"pid"`
	Content   string   `json:"content"`
	Title     string   `json:"title,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
	Endorse   bool     `json:"endorse,omitempty"`
	FromQueue bool     `json:"-"`
}

// PostEditResult is the {topic, editor, post} triple returned by EditPost.
type PostEditResult struct {
	Topic  *TopicFields `json:"topic"`
	Editor *UserInfo    `json:"editor"`
	Post   *Post        `json:"post"`
}

// mainPostEdit is the outcome of the main-post side effects. For non-main
// posts it degrades to a pass-through of the topic's current state.
type mainPostEdit struct {
	Title       string
	CID         int64
	Slug        string
	Renamed     bool
	TagsUpdated bool
	Rescheduled bool
	OldTags     []TagObject
}

// EditPost re-validates permissions, recomputes derived fields and
// persists the edit, its diff record and the follower notifications.
func (f *Forum) EditPost(req *PostEditRequest) (*PostEditResult, error) {
	post, err := f.getPost(req.PID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrNoPost
	}

	var (
		check EditCheck
		topic *Topic
	)
	err = awaitAll(
		func() (err error) {
			check, err = f.privileges.CanEditPost(post, req.UID)
			return err
		},
		func() (err error) {
			topic, err = f.getTopic(post.TID)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return nil, ErrNoTopic
	}
	if !check.Allowed && !canEndorse(req, post, topic) {
		if check.Message != "" {
			return nil, &Error{Code: ErrNoPrivileges.Code, Message: check.Message}
		}
		return nil, ErrNoPrivileges
	}

	isMain := post.PID == topic.MainPID
	if topic.Scheduled {
		canSchedule, err := f.privileges.Can(PrivTopicsSchedule, topic.CID, req.UID)
		if err != nil {
			return nil, err
		}
		if !canSchedule {
			return nil, ErrNoPrivileges
		}
		if isMain && req.Timestamp == 0 {
			return nil, ErrInvalidData
		}
	}

	edit := f.getEditPostData(req, post, topic, isMain)

	result, err := f.hooks.FireFilter("filter:post.edit", edit)
	if err != nil {
		return nil, err
	}
	if e, ok := result.(*Post); ok {
		edit = e
	}

	var (
		editor *UserInfo
		main   *mainPostEdit
	)
	err = awaitAll(
		func() (err error) {
			editor, err = f.users.GetUserFields(req.UID)
			return err
		},
		func() (err error) {
			main, err = f.editMainPost(req, post, topic, isMain, edit)
			return err
		},
	)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"content": edit.Content,
		"edited":  edit.Edited,
		"editor":  edit.Editor,
	}
	if req.Endorse {
		fields["endorsed"] = edit.Endorsed
	}
	if main.Rescheduled {
		fields["timestamp"] = edit.Timestamp
	}
	if err := f.store.SetObject(postKey(post.PID), fields); err != nil {
		return nil, err
	}

	contentChanged := edit.Content != post.Content || main.Renamed || main.TagsUpdated
	if cfg.Config.Post.EnablePostHistory && contentChanged {
		oldTitle := ""
		if main.Renamed {
			oldTitle = topic.Title
		}
		if err := f.diffs.Save(post.PID, req.UID, edit.Edited, post.Content, oldTitle, main.OldTags); err != nil {
			return nil, err
		}
	}

	view := *edit
	view.CID = main.CID
	view.IsMain = isMain
	view.EditedISO = toISOString(edit.Edited)
	view.Changed = contentChanged
	view.OldContent = post.Content
	view.NewContent = edit.Content
	if err := f.SyncUploads(&view); err != nil {
		return nil, err
	}

	topicFields, err := f.getTopicFields(topic.TID)
	if err != nil {
		return nil, err
	}
	view.Topic = topicFields

	if err := f.notifications.NotifyTopicFollowers(topic, &view, view.NewContent); err != nil {
		log.Warn().Err(err).Int64("pid", post.PID).Msg("Unable to notify followers of edit")
	}
	newLinks, err := f.SyncBacklinks(&view)
	if err != nil {
		return nil, err
	}
	if len(newLinks) > 0 && !topic.Scheduled {
		if err := f.notifications.NotifyBacklinks(&view, newLinks); err != nil {
			log.Warn().Err(err).Int64("pid", post.PID).Msg("Unable to notify backlinked topic owners")
		}
	}

	snapshot := view
	f.hooks.FireAction("action:post.edit", &snapshot)

	f.postCache.Invalidate(post.PID)
	parsed, err := f.ParsePost(&view)
	if err != nil {
		return nil, err
	}

	telemetry.PostEditsTotal.With(editKind(req, main)).Inc()
	return &PostEditResult{Topic: topicFields, Editor: editor, Post: parsed}, nil
}

// canEndorse is the endorsement override: the topic's original author may
// toggle endorsement on a post without general edit rights, but only when
// the content is byte-identical to the stored value.
func canEndorse(req *PostEditRequest, post *Post, topic *Topic) bool {
	return req.UID != 0 && req.UID == topic.UID && req.Endorse && req.Content == post.Content
}

// getEditPostData computes the edited record. Scheduled topics keep a
// strictly increasing edit trail one unit past the previous edit or
// creation time, except a main-post reschedule, which takes the supplied
// timestamp verbatim for both fields.
func (f *Forum) getEditPostData(req *PostEditRequest, post *Post, topic *Topic, isMain bool) *Post {
	edit := *post
	edit.Content = req.Content
	edit.Editor = req.UID
	if req.Endorse {
		edit.Endorsed = !post.Endorsed
	}
	switch {
	case isReschedule(req, topic, isMain):
		edit.Edited = req.Timestamp
		edit.Timestamp = req.Timestamp
	case topic.Scheduled:
		previous := post.Edited
		if previous == 0 {
			previous = post.Timestamp
		}
		edit.Edited = previous + 1
	default:
		edit.Edited = nowMillis()
	}
	return &edit
}

func isReschedule(req *PostEditRequest, topic *Topic, isMain bool) bool {
	return isMain && topic.Scheduled && req.Timestamp != 0 && req.Timestamp != topic.Timestamp
}

// editMainPost applies the topic-level side effects of editing a main
// post: rename, retag, reschedule. For non-main posts it reports the
// topic's current state unchanged.
func (f *Forum) editMainPost(req *PostEditRequest, post *Post, topic *Topic, isMain bool, edit *Post) (*mainPostEdit, error) {
	passThrough := &mainPostEdit{Title: topic.Title, CID: topic.CID, Slug: topic.Slug}
	if !isMain {
		return passThrough, nil
	}

	newTitle := strings.TrimSpace(req.Title)
	renamed := newTitle != "" && escapeTitle(newTitle) != topic.Title

	tagsUpdated := false
	var newTags []string
	var oldTags []TagObject
	if req.Tags != nil {
		filtered, err := f.tags.Filter(req.Tags, topic.CID)
		if err != nil {
			return nil, err
		}
		current, err := f.tags.TopicTags(topic.TID)
		if err != nil {
			return nil, err
		}
		if !sameTagSet(filtered, current) {
			canTag, err := f.privileges.Can(PrivTopicsTag, topic.CID, req.UID)
			if err != nil {
				return nil, err
			}
			if !canTag {
				return nil, ErrNoPrivileges
			}
			if err := f.tags.Validate(filtered, topic.CID); err != nil {
				return nil, err
			}
			tagsUpdated = true
			newTags = filtered
			oldTags, err = f.tags.TopicTagObjects(topic.TID)
			if err != nil {
				return nil, err
			}
		}
	}

	updated := *topic
	if renamed {
		updated.Title = escapeTitle(newTitle)
		updated.Slug = topicSlug(topic.TID, newTitle)
	}

	result, err := f.hooks.FireFilter("filter:topic.edit", &updated)
	if err != nil {
		return nil, err
	}
	if t, ok := result.(*Topic); ok {
		updated = *t
	}

	if renamed {
		if err := f.store.SetObject(topicKey(topic.TID), map[string]interface{}{
			"title": updated.Title,
			"slug":  updated.Slug,
		}); err != nil {
			return nil, err
		}
	}
	if tagsUpdated {
		if err := f.tags.UpdateTopicTags(topic.TID, newTags); err != nil {
			return nil, err
		}
	}

	rescheduled := isReschedule(req, topic, isMain)
	if rescheduled {
		if err := f.rescheduleTopic(topic, post.PID, req.Timestamp); err != nil {
			return nil, err
		}
	}

	snapshot := updated
	f.hooks.FireAction("action:topic.edit", &snapshot)

	return &mainPostEdit{
		Title:       updated.Title,
		CID:         updated.CID,
		Slug:        updated.Slug,
		Renamed:     renamed,
		TagsUpdated: tagsUpdated,
		Rescheduled: rescheduled,
		OldTags:     oldTags,
	}, nil
}

// sameTagSet compares tag lists as sets.
func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func editKind(req *PostEditRequest, main *mainPostEdit) string {
	switch {
	case main.Rescheduled:
		return "reschedule"
	case req.Endorse:
		return "endorse"
	case main.Renamed:
		return "rename"
	default:
		return "content"
	}
}
