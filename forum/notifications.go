package forum

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/burrowbb/burrow/hooks"
	"github.com/burrowbb/burrow/store"
)

// Notification is a stored in-app notification record.
type Notification struct {
	NID       string
	Type      string
	BodyShort string
	Path      string
	PID       int64
	TID       int64
	FromUID   int64
	MergeID   string
	Timestamp int64
}

// Notifications fans stored notifications out to follower lists. Delivery
// is append-only: each recipient gets the nid in their personal index and
// reads the shared record on demand.
type Notifications struct {
	store store.Store
	hooks *hooks.Bus
}

// NewNotifications creates the notification collaborator.
func NewNotifications(s store.Store, h *hooks.Bus) *Notifications {
	return &Notifications{store: s, hooks: h}
}

// Push stores a notification record and delivers it to the given uids.
func (n *Notifications) Push(notification *Notification, uids []int64) error {
	if len(uids) == 0 {
		return nil
	}
	if notification.NID == "" {
		notification.NID = uuid.NewString()
	}
	if notification.Timestamp == 0 {
		notification.Timestamp = nowMillis()
	}
	fields := map[string]interface{}{
		"type":       notification.Type,
		"body_short": notification.BodyShort,
		"path":       notification.Path,
		"pid":        notification.PID,
		"tid":        notification.TID,
		"from_uid":   notification.FromUID,
		"merge_id":   notification.MergeID,
		"timestamp":  notification.Timestamp,
	}
	if err := n.store.SetObject("notification:"+notification.NID, fields); err != nil {
		return err
	}
	keys := make([]string, 0, len(uids))
	for _, uid := range uids {
		if uid <= 0 {
			continue
		}
		keys = append(keys, "uid:"+formatInt(uid)+":notifications")
	}
	if len(keys) == 0 {
		return nil
	}
	if err := n.store.SortedSetsAdd(keys, notification.Timestamp, notification.NID); err != nil {
		return err
	}
	n.hooks.FireAction("action:notification.push", map[string]interface{}{
		"notification": notification,
		"uids":         uids,
	})
	return nil
}

// NotifyTopicFollowers notifies everyone following the topic except the
// author of the triggering post.
func (n *Notifications) NotifyTopicFollowers(topic *Topic, post *Post, bodyShort string) error {
	followers, err := n.followerUIDs("tid:"+formatInt(topic.TID)+":followers", post.UID)
	if err != nil {
		return err
	}
	return n.Push(&Notification{
		Type:      "new-reply",
		BodyShort: bodyShort,
		Path:      "/post/" + formatInt(post.PID),
		PID:       post.PID,
		TID:       topic.TID,
		FromUID:   post.UID,
		MergeID:   "notifications:user-posted-to|" + formatInt(topic.TID),
	}, followers)
}

// NotifyTagFollowers notifies the followers of each of the topic's tags
// about a new topic. Recipients are deduped across tags.
func (n *Notifications) NotifyTagFollowers(topic *Topic, tags []string, exclude int64) error {
	seen := make(map[int64]struct{})
	var uids []int64
	for _, tag := range tags {
		followers, err := n.followerUIDs("tag:"+tag+":followers", exclude)
		if err != nil {
			return err
		}
		for _, uid := range followers {
			if _, dup := seen[uid]; dup {
				continue
			}
			seen[uid] = struct{}{}
			uids = append(uids, uid)
		}
	}
	return n.Push(&Notification{
		Type:      "new-topic-with-tag",
		BodyShort: topic.Title,
		Path:      "/topic/" + topic.Slug,
		TID:       topic.TID,
		FromUID:   topic.UID,
	}, uids)
}

// NotifyAuthorFollowers notifies the users following the topic's author
// about the new topic. Guests have no followers.
func (n *Notifications) NotifyAuthorFollowers(topic *Topic) error {
	if topic.UID <= 0 {
		return nil
	}
	followers, err := n.followerUIDs("uid:"+formatInt(topic.UID)+":followers", topic.UID)
	if err != nil {
		return err
	}
	return n.Push(&Notification{
		Type:      "new-topic",
		BodyShort: topic.Title,
		Path:      "/topic/" + topic.Slug,
		TID:       topic.TID,
		FromUID:   topic.UID,
	}, followers)
}

// NotifyCategoryFollowers notifies category followers about a new topic.
func (n *Notifications) NotifyCategoryFollowers(categories *Categories, topic *Topic) error {
	followers, err := categories.Followers(topic.CID)
	if err != nil {
		return err
	}
	filtered := followers[:0]
	for _, uid := range followers {
		if uid != topic.UID {
			filtered = append(filtered, uid)
		}
	}
	return n.Push(&Notification{
		Type:      "new-topic-in-category",
		BodyShort: topic.Title,
		Path:      "/topic/" + topic.Slug,
		TID:       topic.TID,
		FromUID:   topic.UID,
	}, filtered)
}

// NotifyBacklinks tells the owner of each newly referenced topic that a
// post links to it. Self-references are skipped.
func (n *Notifications) NotifyBacklinks(post *Post, tids []string) error {
	for _, tidStr := range tids {
		fields, err := n.store.GetObjectFields("topic:"+tidStr, []string{"uid"})
		if err != nil {
			return err
		}
		owner := toInt64(fields["uid"])
		if owner <= 0 || owner == post.UID {
			continue
		}
		err = n.Push(&Notification{
			Type:      "backlink",
			BodyShort: post.Content,
			Path:      "/post/" + formatInt(post.PID),
			PID:       post.PID,
			TID:       post.TID,
			FromUID:   post.UID,
			MergeID:   "notifications:backlink|" + tidStr,
		}, []int64{owner})
		if err != nil {
			return err
		}
	}
	return nil
}

// Follow subscribes the user to a topic's reply notifications.
func (n *Notifications) Follow(tid, uid int64) error {
	if uid <= 0 {
		return nil
	}
	return n.store.SortedSetAdd("tid:"+formatInt(tid)+":followers", nowMillis(), formatInt(uid))
}

func (n *Notifications) followerUIDs(key string, exclude int64) ([]int64, error) {
	members, err := n.store.SortedSetRange(key, 0, -1)
	if err != nil {
		return nil, err
	}
	uids := make([]int64, 0, len(members))
	for _, m := range members {
		uid := toInt64(m)
		if uid <= 0 || uid == exclude {
			continue
		}
		uids = append(uids, uid)
	}
	if len(members) > 0 && len(uids) == 0 {
		log.Debug().Str("key", key).Msg("All followers excluded from notification")
	}
	return uids, nil
}
