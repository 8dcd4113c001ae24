package forum

import (
	"regexp"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/burrowbb/burrow/cfg"
	"github.com/burrowbb/burrow/store"
)

// lastOnlineFlushInterval limits how often a user's lastonline field is
// written through to the store; reply bursts only pay for one write.
const lastOnlineFlushInterval = time.Minute

var linkPattern = regexp.MustCompile(`https?://[^\s]+`)

// Users is the user-subsystem collaborator: denormalized per-user indexes,
// settings, display info and posting-readiness checks.
type Users struct {
	store store.Store

	// uid → last store write of lastonline, in ms
	lastOnline *xsync.MapOf[int64, int64]
}

// UserSettings is the per-user settings projection the orchestrators read.
type UserSettings struct {
	FollowTopicsOnCreate bool
	FollowTopicsOnReply  bool
}

// NewUsers creates the user collaborator.
func NewUsers(s store.Store) *Users {
	return &Users{
		store:      s,
		lastOnline: xsync.NewMapOf[int64, int64](),
	}
}

// GetUserFields returns the display projection for a user. Guests get a
// stable placeholder.
func (u *Users) GetUserFields(uid int64) (*UserInfo, error) {
	if uid == 0 {
		return &UserInfo{UID: 0, Username: "Guest", DisplayName: "Guest"}, nil
	}
	fields, err := u.store.GetObjectFields(userKey(uid), []string{"username", "userslug"})
	if err != nil {
		return nil, err
	}
	info := &UserInfo{
		UID:      uid,
		Username: toString(fields["username"]),
		UserSlug: toString(fields["userslug"]),
	}
	info.DisplayName = info.Username
	if info.DisplayName == "" {
		info.DisplayName = "user-" + formatInt(uid)
	}
	return info, nil
}

// GetSettings returns the user's follow settings. Missing fields fall back
// to following created topics but not replied-to ones.
func (u *Users) GetSettings(uid int64) (UserSettings, error) {
	settings := UserSettings{FollowTopicsOnCreate: true}
	if uid == 0 {
		return UserSettings{}, nil
	}
	fields, err := u.store.GetObjectFields(userKey(uid),
		[]string{"followTopicsOnCreate", "followTopicsOnReply"})
	if err != nil {
		return settings, err
	}
	if v, ok := fields["followTopicsOnCreate"]; ok {
		settings.FollowTopicsOnCreate = toBool(v)
	}
	if v, ok := fields["followTopicsOnReply"]; ok {
		settings.FollowTopicsOnReply = toBool(v)
	}
	return settings, nil
}

// OnNewPostMade maintains the per-user post indexes for a freshly created
// post.
func (u *Users) OnNewPostMade(post *Post) error {
	if post.UID == 0 {
		return nil
	}
	key := userKey(post.UID)
	if err := u.store.SortedSetAdd("uid:"+formatInt(post.UID)+":posts", post.Timestamp, formatInt(post.PID)); err != nil {
		return err
	}
	if _, err := u.store.IncrObjectField(key, "postcount", 1); err != nil {
		return err
	}
	return u.store.SetObjectField(key, "lastposttime", post.Timestamp)
}

// AddTopicIDToUser records topic authorship in the per-user topic index.
func (u *Users) AddTopicIDToUser(uid, tid, timestamp int64) error {
	if uid == 0 {
		return nil
	}
	return u.store.SortedSetAdd("uid:"+formatInt(uid)+":topics", timestamp, formatInt(tid))
}

// ExistsBySlug reports whether a registered user already claimed the slug.
// Used to keep guest handles from impersonating members.
func (u *Users) ExistsBySlug(slug string) (bool, error) {
	if slug == "" {
		return false, nil
	}
	return u.store.Exists("userslug:" + slug)
}

// SetLastOnline stamps the user's lastonline field, write-behind through an
// in-memory map so bursts collapse to one store write per interval.
func (u *Users) SetLastOnline(uid int64) error {
	if uid == 0 {
		return nil
	}
	now := nowMillis()
	last, _ := u.lastOnline.Load(uid)
	if now-last < lastOnlineFlushInterval.Milliseconds() {
		return nil
	}
	u.lastOnline.Store(uid, now)
	return u.store.SetObjectField(userKey(uid), "lastonline", now)
}

// IsReadyToPost enforces the posting-rate gate. Guests are always ready;
// the guest-handle and privilege gates cover them elsewhere.
func (u *Users) IsReadyToPost(uid, cid int64) error {
	if uid == 0 {
		return nil
	}
	delay := int64(cfg.Config.Post.PostDelaySeconds) * 1000
	if delay <= 0 {
		return nil
	}
	fields, err := u.store.GetObjectFields(userKey(uid), []string{"lastposttime"})
	if err != nil {
		return err
	}
	if last := toInt64(fields["lastposttime"]); last > 0 && nowMillis()-last < delay {
		return ErrTooManyPosts
	}
	return nil
}

// CanPostContentWithLinks enforces the reputation gate on link posting.
// Content without links always passes.
func (u *Users) CanPostContentWithLinks(uid int64, content string) (bool, error) {
	min := cfg.Config.Post.MinRepPostLinks
	if min <= 0 {
		return true, nil
	}
	if !linkPattern.MatchString(content) {
		return true, nil
	}
	if uid == 0 {
		return false, nil
	}
	fields, err := u.store.GetObjectFields(userKey(uid), []string{"reputation"})
	if err != nil {
		return false, err
	}
	return toInt64(fields["reputation"]) >= int64(min), nil
}
