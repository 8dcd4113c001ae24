package forum

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/burrowbb/burrow/cfg"
	"github.com/burrowbb/burrow/hooks"
	"github.com/burrowbb/burrow/store"
)

func setupTestForum(t *testing.T) *Forum {
	t.Helper()

	// Rate limiting gets in the way of sequential test operations.
	prevDelay := cfg.Config.Post.PostDelaySeconds
	cfg.Config.Post.PostDelaySeconds = 0
	t.Cleanup(func() {
		cfg.Config.Post.PostDelaySeconds = prevDelay
	})

	s, err := store.NewPebbleStore(t.TempDir(), store.DefaultPebbleOptions())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	f, err := New(s, hooks.NewBus(), nil)
	if err != nil {
		t.Fatalf("Failed to create forum: %v", err)
	}
	return f
}

func seedCategory(t *testing.T, f *Forum, cid int64) {
	t.Helper()
	err := f.store.SetObject(categoryKey(cid), map[string]interface{}{
		"cid":  cid,
		"name": "general",
	})
	if err != nil {
		t.Fatalf("Failed to seed category: %v", err)
	}
}

func seedUser(t *testing.T, f *Forum, uid int64, role string) {
	t.Helper()
	err := f.store.SetObject(userKey(uid), map[string]interface{}{
		"uid":      uid,
		"username": "user" + formatInt(uid),
		"userslug": "user" + formatInt(uid),
		"role":     role,
	})
	if err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
}

func seedTopic(t *testing.T, f *Forum, topic *Topic) {
	t.Helper()
	if err := f.store.SetObject(topicKey(topic.TID), topicToFields(topic)); err != nil {
		t.Fatalf("Failed to seed topic: %v", err)
	}
}

func TestCreatePostMonotonicPid(t *testing.T) {
	f := setupTestForum(t)
	seedUser(t, f, 1, "user")
	seedTopic(t, f, &Topic{TID: 1, UID: 1, CID: 1, Timestamp: nowMillis()})

	var prev int64
	for i := 0; i < 5; i++ {
		post, err := f.CreatePost(&PostCreateRequest{UID: 1, TID: 1, Content: "some reply content"})
		if err != nil {
			t.Fatalf("CreatePost failed: %v", err)
		}
		if post.PID <= prev {
			t.Errorf("pid not monotonic: %d after %d", post.PID, prev)
		}
		prev = post.PID
	}
}

func TestCreatePostInvalidParent(t *testing.T) {
	f := setupTestForum(t)
	seedUser(t, f, 1, "user")
	seedTopic(t, f, &Topic{TID: 1, UID: 1, CID: 1, Timestamp: nowMillis()})

	_, err := f.CreatePost(&PostCreateRequest{UID: 1, TID: 1, Content: "reply content", ToPID: 999})
	if !errors.Is(err, ErrInvalidPID) {
		t.Errorf("Expected invalid-pid, got %v", err)
	}
}

func TestCreatePostReplyIndex(t *testing.T) {
	f := setupTestForum(t)
	seedUser(t, f, 1, "user")
	seedTopic(t, f, &Topic{TID: 1, UID: 1, CID: 1, Timestamp: nowMillis()})

	parent, err := f.CreatePost(&PostCreateRequest{UID: 1, TID: 1, Content: "parent post content"})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	child, err := f.CreatePost(&PostCreateRequest{UID: 1, TID: 1, Content: "child post content", ToPID: parent.PID})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	fields, err := f.store.GetObjectFields(postKey(parent.PID), []string{"replies"})
	if err != nil {
		t.Fatalf("GetObjectFields failed: %v", err)
	}
	if got := toInt64(fields["replies"]); got != 1 {
		t.Errorf("Expected 1 reply, got %d", got)
	}
	isMember, err := f.store.IsSortedSetMember("pid:"+formatInt(parent.PID)+":replies", formatInt(child.PID))
	if err != nil {
		t.Fatalf("IsSortedSetMember failed: %v", err)
	}
	if !isMember {
		t.Error("Child pid missing from parent reply index")
	}
}

func TestPostNewTopic(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")

	result, err := f.PostNewTopic(&TopicPostRequest{
		UID:     1,
		CID:     1,
		Title:   "  Hello World  ",
		Content: "the very first post of this topic",
	})
	if err != nil {
		t.Fatalf("PostNewTopic failed: %v", err)
	}

	topic := result.Topic
	if topic.Slug != formatInt(topic.TID)+"/hello-world" {
		t.Errorf("Unexpected slug %q", topic.Slug)
	}
	if !topic.Unreplied || topic.Index != 0 {
		t.Error("Expected unreplied topic at index 0")
	}
	if topic.MainPID != result.Post.PID {
		t.Errorf("mainPid %d does not match post pid %d", topic.MainPID, result.Post.PID)
	}
	if !result.Post.IsMain {
		t.Error("Main post not stamped isMain")
	}

	count, err := f.store.CounterValue("topicCount")
	if err != nil {
		t.Fatalf("CounterValue failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected topicCount 1, got %d", count)
	}
}

func TestPostNewTopicMissingCategory(t *testing.T) {
	f := setupTestForum(t)
	seedUser(t, f, 1, "user")

	_, err := f.PostNewTopic(&TopicPostRequest{UID: 1, CID: 42, Title: "A Topic", Content: "some topic content"})
	if !errors.Is(err, ErrNoCategory) {
		t.Errorf("Expected no-category, got %v", err)
	}
}

func TestPostNewTopicGuestLacksPrivileges(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)

	_, err := f.PostNewTopic(&TopicPostRequest{UID: 0, CID: 1, Title: "A Topic", Content: "some topic content"})
	if !errors.Is(err, ErrNoPrivileges) {
		t.Errorf("Expected no-privileges, got %v", err)
	}
}

func TestPostNewTopicLengthChecks(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	seedUser(t, f, 9, "administrator")

	_, err := f.PostNewTopic(&TopicPostRequest{UID: 1, CID: 1, Title: "ab", Content: "long enough content"})
	if !errors.Is(err, ErrTitleTooShort) {
		t.Errorf("Expected title-too-short, got %v", err)
	}

	_, err = f.PostNewTopic(&TopicPostRequest{UID: 1, CID: 1, Title: "A Topic", Content: "nope"})
	if !errors.Is(err, ErrContentTooShort) {
		t.Errorf("Expected content-too-short, got %v", err)
	}

	// Administrators bypass length validation
	_, err = f.PostNewTopic(&TopicPostRequest{UID: 9, CID: 1, Title: "ab", Content: "ok"})
	if err != nil {
		t.Errorf("Administrator should bypass length checks, got %v", err)
	}
}

func TestReplyGateLockedWinsOverPrivileges(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	// Raise the reply threshold so the actor also lacks reply capability.
	if err := f.store.SetObjectField(categoryKey(1), "priv:"+PrivTopicsReply, "moderator"); err != nil {
		t.Fatalf("SetObjectField failed: %v", err)
	}
	seedTopic(t, f, &Topic{TID: 1, UID: 2, CID: 1, Timestamp: nowMillis(), Locked: true})

	_, err := f.Reply(&ReplyRequest{UID: 1, TID: 1, Content: "a reply that is long enough"})
	if !errors.Is(err, ErrTopicLocked) {
		t.Errorf("Expected topic-locked to surface first, got %v", err)
	}
}

func TestReplyGateDeletedTopic(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	seedUser(t, f, 2, "moderator")
	seedTopic(t, f, &Topic{TID: 1, UID: 5, CID: 1, Timestamp: nowMillis(), Deleted: true})

	_, err := f.Reply(&ReplyRequest{UID: 1, TID: 1, Content: "a reply that is long enough"})
	if !errors.Is(err, ErrTopicDeleted) {
		t.Errorf("Expected topic-deleted, got %v", err)
	}

	// Moderators may still reply
	_, err = f.Reply(&ReplyRequest{UID: 2, TID: 1, Content: "a moderator reply that is long enough"})
	if err != nil {
		t.Errorf("Moderator reply to deleted topic failed: %v", err)
	}
}

func TestReplyParentPostSurvivesRestart(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	seedTopic(t, f, &Topic{TID: 1, UID: 1, CID: 1, Timestamp: nowMillis()})

	parent, err := f.CreatePost(&PostCreateRequest{UID: 1, TID: 1, Content: "the original parent post"})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	// A fresh forum over the same store, as after a process restart. The
	// parent pid was allocated before this instance existed and must still
	// be a valid reply target.
	restarted, err := New(f.store, hooks.NewBus(), nil)
	if err != nil {
		t.Fatalf("Failed to create forum: %v", err)
	}
	reply, err := restarted.Reply(&ReplyRequest{UID: 1, TID: 1, Content: "a reply that is long enough", ToPID: parent.PID})
	if err != nil {
		t.Fatalf("Reply to pre-restart parent failed: %v", err)
	}
	if reply.ToPID != parent.PID {
		t.Errorf("Expected toPid %d, got %d", parent.PID, reply.ToPID)
	}
}

func TestReplyMissingTopic(t *testing.T) {
	f := setupTestForum(t)
	seedUser(t, f, 1, "user")

	_, err := f.Reply(&ReplyRequest{UID: 1, TID: 404, Content: "a reply that is long enough"})
	if !errors.Is(err, ErrNoTopic) {
		t.Errorf("Expected no-topic, got %v", err)
	}
}

func TestReplyScheduledTopicTimestamp(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	seedUser(t, f, 2, "moderator")

	future := nowMillis() + time.Hour.Milliseconds()
	tid, err := f.CreateTopic(&TopicCreateRequest{UID: 2, CID: 1, Title: "Scheduled Topic", Timestamp: future})
	if err != nil {
		t.Fatalf("CreateTopic failed: %v", err)
	}

	// Plain users lack the schedule capability
	_, err = f.Reply(&ReplyRequest{UID: 1, TID: tid, Content: "a reply that is long enough"})
	if !errors.Is(err, ErrNoPrivileges) {
		t.Errorf("Expected no-privileges for unprivileged reply, got %v", err)
	}

	post, err := f.Reply(&ReplyRequest{UID: 2, TID: tid, Content: "a reply that is long enough"})
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if post.Timestamp != future+1 {
		t.Errorf("Expected reply timestamp %d, got %d", future+1, post.Timestamp)
	}
}

func TestPostNewTopicNotifiesAuthorFollowers(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	seedUser(t, f, 2, "user")
	if err := f.store.SortedSetAdd("uid:1:followers", nowMillis(), "2"); err != nil {
		t.Fatalf("Failed to seed follower: %v", err)
	}

	_, err := f.PostNewTopic(&TopicPostRequest{UID: 1, CID: 1, Title: "A Topic", Content: "some topic content"})
	if err != nil {
		t.Fatalf("PostNewTopic failed: %v", err)
	}

	nids, err := f.store.SortedSetRange("uid:2:notifications", 0, -1)
	if err != nil {
		t.Fatalf("SortedSetRange failed: %v", err)
	}
	if len(nids) != 1 {
		t.Fatalf("Expected 1 notification for the author's follower, got %d", len(nids))
	}
	fields, err := f.store.GetObjectFields("notification:"+nids[0], []string{"type"})
	if err != nil {
		t.Fatalf("GetObjectFields failed: %v", err)
	}
	if fields["type"] != "new-topic" {
		t.Errorf("Expected new-topic notification, got %v", fields["type"])
	}
}

func TestScheduledTopicDefersFollowerNotifications(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 2, "user")
	seedUser(t, f, 3, "moderator")
	if err := f.store.SortedSetAdd("uid:3:followers", nowMillis(), "2"); err != nil {
		t.Fatalf("Failed to seed follower: %v", err)
	}

	future := nowMillis() + time.Hour.Milliseconds()
	result, err := f.PostNewTopic(&TopicPostRequest{
		UID:       3,
		CID:       1,
		Title:     "Scheduled Topic",
		Content:   "content that goes out later",
		Timestamp: future,
	})
	if err != nil {
		t.Fatalf("PostNewTopic failed: %v", err)
	}
	if !result.Topic.Scheduled {
		t.Fatal("Expected a scheduled topic")
	}

	card, err := f.store.SortedSetCard("uid:2:notifications")
	if err != nil {
		t.Fatalf("SortedSetCard failed: %v", err)
	}
	if card != 0 {
		t.Errorf("Scheduled topic notified followers early: %d notifications", card)
	}

	// Publication fires the deferred fan-out and surfaces the topic.
	if err := f.publishScheduledTopic(result.Topic.TID); err != nil {
		t.Fatalf("publishScheduledTopic failed: %v", err)
	}
	card, err = f.store.SortedSetCard("uid:2:notifications")
	if err != nil {
		t.Fatalf("SortedSetCard failed: %v", err)
	}
	if card != 1 {
		t.Errorf("Expected 1 notification after publication, got %d", card)
	}
	inRecent, err := f.store.IsSortedSetMember("topics:recent", formatInt(result.Topic.TID))
	if err != nil {
		t.Fatalf("IsSortedSetMember failed: %v", err)
	}
	if !inRecent {
		t.Error("Published topic missing from the recent index")
	}
}

func TestPostNewTopicScheduleRequiresPrivilege(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	seedUser(t, f, 2, "moderator")

	future := nowMillis() + time.Hour.Milliseconds()
	_, err := f.PostNewTopic(&TopicPostRequest{
		UID:       1,
		CID:       1,
		Title:     "A Topic",
		Content:   "some topic content",
		Timestamp: future,
	})
	if !errors.Is(err, ErrNoPrivileges) {
		t.Errorf("Expected no-privileges for unprivileged scheduling, got %v", err)
	}

	result, err := f.PostNewTopic(&TopicPostRequest{
		UID:       2,
		CID:       1,
		Title:     "A Topic",
		Content:   "some topic content",
		Timestamp: future,
	})
	if err != nil {
		t.Fatalf("PostNewTopic failed: %v", err)
	}
	if !result.Topic.Scheduled {
		t.Error("Expected a scheduled topic")
	}
}

func TestReplyRequestIgnoresWireTimestamp(t *testing.T) {
	var req ReplyRequest
	body := []byte(`{"uid":1,"tid":1,"content":"a reply that is long enough","timestamp":123}`)
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if req.Timestamp != 0 {
		t.Errorf("Wire timestamp must not reach the reply, got %d", req.Timestamp)
	}
}

func TestScheduledTopicHiddenFromRecent(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 2, "moderator")

	future := nowMillis() + time.Hour.Milliseconds()
	tid, err := f.CreateTopic(&TopicCreateRequest{UID: 2, CID: 1, Title: "Scheduled Topic", Timestamp: future})
	if err != nil {
		t.Fatalf("CreateTopic failed: %v", err)
	}

	inRecent, err := f.store.IsSortedSetMember("topics:recent", formatInt(tid))
	if err != nil {
		t.Fatalf("IsSortedSetMember failed: %v", err)
	}
	if inRecent {
		t.Error("Scheduled topic must not be in the recent index")
	}
	inScheduled, err := f.store.IsSortedSetMember("topics:scheduled", formatInt(tid))
	if err != nil {
		t.Fatalf("IsSortedSetMember failed: %v", err)
	}
	if !inScheduled {
		t.Error("Scheduled topic missing from the publish queue")
	}

	topic, err := f.getTopic(tid)
	if err != nil {
		t.Fatalf("getTopic failed: %v", err)
	}
	if !topic.Pinned {
		t.Error("Scheduled topic should be pinned until publication")
	}
}
