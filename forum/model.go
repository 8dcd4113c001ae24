package forum

import (
	"html"
	"regexp"
	"strconv"
	"time"
)

// Post is the in-memory view of a post record. The store owns the record;
// orchestrators hold this view only for the duration of one operation.
type Post struct {
	PID       int64  `json:"pid"`
	UID       int64  `json:"uid"`
	TID       int64  `json:"tid"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`

	// Optional, stored only when set
	ToPID     int64  `json:"toPid,omitempty"`
	IP        string `json:"ip,omitempty"`
	Handle    string `json:"handle,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty"`

	// Moderation / edit metadata
	ContentFlag bool  `json:"contentFlag,omitempty"`
	Deleted     bool  `json:"deleted"`
	Editor      int64 `json:"editor,omitempty"`
	Edited      int64 `json:"edited,omitempty"`
	Endorsed    bool  `json:"endorsed"`
	Replies     int64 `json:"replies"`

	// Denormalized from the owning topic
	CID int64 `json:"cid"`

	// View-only fields, never persisted
	IsMain                bool         `json:"isMain"`
	Index                 int64        `json:"index"`
	Votes                 int64        `json:"votes"`
	Bookmarked            bool         `json:"bookmarked"`
	SelfPost              bool         `json:"selfPost"`
	DisplayEditTools      bool         `json:"display_edit_tools"`
	DisplayDeleteTools    bool         `json:"display_delete_tools"`
	DisplayModeratorTools bool         `json:"display_moderator_tools"`
	DisplayMoveTools      bool         `json:"display_move_tools"`
	TimestampISO          string       `json:"timestampISO,omitempty"`
	EditedISO             string       `json:"editedISO,omitempty"`
	Changed               bool         `json:"changed,omitempty"`
	OldContent            string       `json:"oldContent,omitempty"`
	NewContent            string       `json:"newContent,omitempty"`
	User                  *UserInfo    `json:"user,omitempty"`
	Topic                 *TopicFields `json:"topic,omitempty"`
}

// Topic is the in-memory view of a topic record.
type Topic struct {
	TID          int64  `json:"tid"`
	UID          int64  `json:"uid"`
	CID          int64  `json:"cid"`
	MainPID      int64  `json:"mainPid"`
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	Timestamp    int64  `json:"timestamp"`
	LastPostTime int64  `json:"lastposttime"`
	PostCount    int64  `json:"postcount"`
	ViewCount    int64  `json:"viewcount"`
	Tags         string `json:"tags,omitempty"`
	Locked       bool   `json:"locked"`
	Deleted      bool   `json:"deleted"`
	Pinned       bool   `json:"pinned"`
	Scheduled    bool   `json:"scheduled"`

	// View-only fields
	Unreplied bool  `json:"unreplied,omitempty"`
	Index     int64 `json:"index"`
	MainPost  *Post `json:"mainPost,omitempty"`
}

// TopicFields is the restricted topic projection embedded into post views.
type TopicFields struct {
	TID       int64       `json:"tid"`
	UID       int64       `json:"uid"`
	CID       int64       `json:"cid"`
	MainPID   int64       `json:"mainPid"`
	Title     string      `json:"title"`
	Slug      string      `json:"slug"`
	PostCount int64       `json:"postcount"`
	Scheduled bool        `json:"scheduled"`
	Tags      []TagObject `json:"tags"`
}

// UserInfo is the author display projection attached to post views.
type UserInfo struct {
	UID         int64  `json:"uid"`
	Username    string `json:"username"`
	UserSlug    string `json:"userslug"`
	DisplayName string `json:"displayname"`
}

// TagObject is a tag with its usage count.
type TagObject struct {
	Value string `json:"value"`
	Score int64  `json:"score"`
}

// postKey/topicKey etc. are the primary record keys. Secondary index key
// shapes live next to the code that maintains them.
func postKey(pid int64) string     { return "post:" + formatInt(pid) }
func topicKey(tid int64) string    { return "topic:" + formatInt(tid) }
func categoryKey(cid int64) string { return "category:" + formatInt(cid) }
func userKey(uid int64) string     { return "user:" + formatInt(uid) }

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

func formatUint(n uint64) string {
	return strconv.FormatUint(n, 16)
}

// postToFields converts a post view to its persisted field map. Optional
// fields are stored only when set, matching the record shape readers expect.
func postToFields(p *Post) map[string]interface{} {
	fields := map[string]interface{}{
		"pid":       p.PID,
		"uid":       p.UID,
		"tid":       p.TID,
		"content":   p.Content,
		"timestamp": p.Timestamp,
	}
	if p.ToPID != 0 {
		fields["toPid"] = p.ToPID
	}
	if p.IP != "" {
		fields["ip"] = p.IP
	}
	if p.Handle != "" {
		fields["handle"] = p.Handle
	}
	if p.ContentFlag {
		fields["contentFlag"] = true
	}
	if p.Anonymous {
		fields["anonymous"] = true
	}
	if p.CID != 0 {
		fields["cid"] = p.CID
	}
	if p.Endorsed {
		fields["endorsed"] = true
	}
	return fields
}

func postFromFields(fields map[string]interface{}) *Post {
	if len(fields) == 0 {
		return nil
	}
	return &Post{
		PID:         toInt64(fields["pid"]),
		UID:         toInt64(fields["uid"]),
		TID:         toInt64(fields["tid"]),
		Content:     toString(fields["content"]),
		Timestamp:   toInt64(fields["timestamp"]),
		ToPID:       toInt64(fields["toPid"]),
		IP:          toString(fields["ip"]),
		Handle:      toString(fields["handle"]),
		ContentFlag: toBool(fields["contentFlag"]),
		Anonymous:   toBool(fields["anonymous"]),
		Deleted:     toBool(fields["deleted"]),
		Editor:      toInt64(fields["editor"]),
		Edited:      toInt64(fields["edited"]),
		Endorsed:    toBool(fields["endorsed"]),
		Replies:     toInt64(fields["replies"]),
		CID:         toInt64(fields["cid"]),
	}
}

func topicToFields(t *Topic) map[string]interface{} {
	fields := map[string]interface{}{
		"tid":          t.TID,
		"uid":          t.UID,
		"cid":          t.CID,
		"mainPid":      t.MainPID,
		"title":        t.Title,
		"slug":         t.Slug,
		"timestamp":    t.Timestamp,
		"lastposttime": t.LastPostTime,
		"postcount":    t.PostCount,
		"viewcount":    t.ViewCount,
	}
	if t.Tags != "" {
		fields["tags"] = t.Tags
	}
	if t.Scheduled {
		fields["scheduled"] = true
	}
	return fields
}

func topicFromFields(fields map[string]interface{}) *Topic {
	if len(fields) == 0 {
		return nil
	}
	return &Topic{
		TID:          toInt64(fields["tid"]),
		UID:          toInt64(fields["uid"]),
		CID:          toInt64(fields["cid"]),
		MainPID:      toInt64(fields["mainPid"]),
		Title:        toString(fields["title"]),
		Slug:         toString(fields["slug"]),
		Timestamp:    toInt64(fields["timestamp"]),
		LastPostTime: toInt64(fields["lastposttime"]),
		PostCount:    toInt64(fields["postcount"]),
		ViewCount:    toInt64(fields["viewcount"]),
		Tags:         toString(fields["tags"]),
		Locked:       toBool(fields["locked"]),
		Deleted:      toBool(fields["deleted"]),
		Pinned:       toBool(fields["pinned"]),
		Scheduled:    toBool(fields["scheduled"]),
	}
}

// Coercion helpers. Field maps come back from msgpack with whatever integer
// width fit the value, so every read goes through these.

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case uint32:
		return int64(n)
	case uint16:
		return int64(n)
	case uint8:
		return int64(n)
	case uint:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

func toBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case string:
		return b == "true" || b == "1"
	default:
		return false
	}
}

// toISOString renders a millisecond timestamp in RFC 3339 UTC form.
func toISOString(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTMLTags removes markup for length checks, so composers that submit
// HTML are measured by their text.
func stripHTMLTags(s string) string {
	return htmlTagPattern.ReplaceAllString(s, "")
}

// escapeTitle sanitizes a topic title for storage and display.
func escapeTitle(title string) string {
	return html.EscapeString(title)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
