package forum

import (
	"errors"
	"testing"
	"time"
)

// publishTestTopic creates a topic with its main post through the full
// orchestrator and returns both.
func publishTestTopic(t *testing.T, f *Forum, uid int64) (*Topic, *Post) {
	t.Helper()
	result, err := f.PostNewTopic(&TopicPostRequest{
		UID:     uid,
		CID:     1,
		Title:   "Original Title",
		Content: "the original main post content",
	})
	if err != nil {
		t.Fatalf("PostNewTopic failed: %v", err)
	}
	return result.Topic, result.Post
}

func TestEditPostByAuthor(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	_, post := publishTestTopic(t, f, 1)

	result, err := f.EditPost(&PostEditRequest{
		UID:     1,
		PID:     post.PID,
		Content: "the freshly edited main post content",
	})
	if err != nil {
		t.Fatalf("EditPost failed: %v", err)
	}
	if !result.Post.Changed {
		t.Error("Expected changed=true for a content edit")
	}
	if result.Post.OldContent != "the original main post content" {
		t.Errorf("Unexpected old content %q", result.Post.OldContent)
	}
	if result.Post.Editor != 1 {
		t.Errorf("Expected editor 1, got %d", result.Post.Editor)
	}

	stored, err := f.getPost(post.PID)
	if err != nil {
		t.Fatalf("getPost failed: %v", err)
	}
	if stored.Content != "the freshly edited main post content" {
		t.Errorf("Edit not persisted, got %q", stored.Content)
	}
}

func TestEditPostDeniedForStranger(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	seedUser(t, f, 2, "user")
	_, post := publishTestTopic(t, f, 1)

	_, err := f.EditPost(&PostEditRequest{
		UID:     2,
		PID:     post.PID,
		Content: "someone else rewriting the post",
	})
	if !errors.Is(err, ErrNoPrivileges) {
		t.Errorf("Expected no-privileges, got %v", err)
	}
}

func TestEditPostMissing(t *testing.T) {
	f := setupTestForum(t)
	seedUser(t, f, 1, "user")

	_, err := f.EditPost(&PostEditRequest{UID: 1, PID: 404, Content: "anything"})
	if !errors.Is(err, ErrNoPost) {
		t.Errorf("Expected no-post, got %v", err)
	}
}

func TestEndorseOverride(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	seedUser(t, f, 2, "user")
	topic, _ := publishTestTopic(t, f, 1)

	reply, err := f.Reply(&ReplyRequest{UID: 2, TID: topic.TID, Content: "a reply from another user"})
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}

	// The topic owner endorses the reply without edit rights on it;
	// content is byte-identical so the override applies.
	result, err := f.EditPost(&PostEditRequest{
		UID:     1,
		PID:     reply.PID,
		Content: reply.Content,
		Endorse: true,
	})
	if err != nil {
		t.Fatalf("Endorsement edit failed: %v", err)
	}
	if !result.Post.Endorsed {
		t.Error("Expected endorsed=true after toggle")
	}

	// The same request with altered content must not pass.
	_, err = f.EditPost(&PostEditRequest{
		UID:     1,
		PID:     reply.PID,
		Content: reply.Content + " sneaky change",
		Endorse: true,
	})
	if !errors.Is(err, ErrNoPrivileges) {
		t.Errorf("Endorsement with altered content should fail, got %v", err)
	}
}

func TestEditMainPostRename(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	topic, post := publishTestTopic(t, f, 1)

	_, err := f.EditPost(&PostEditRequest{
		UID:     1,
		PID:     post.PID,
		Content: post.Content,
		Title:   "Brand New Title",
	})
	if err != nil {
		t.Fatalf("EditPost failed: %v", err)
	}

	updated, err := f.getTopic(topic.TID)
	if err != nil {
		t.Fatalf("getTopic failed: %v", err)
	}
	if updated.Title != "Brand New Title" {
		t.Errorf("Expected renamed title, got %q", updated.Title)
	}
	if updated.Slug != formatInt(topic.TID)+"/brand-new-title" {
		t.Errorf("Slug not re-derived, got %q", updated.Slug)
	}
}

func TestEditMainPostSameTitleNotRenamed(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	topic, post := publishTestTopic(t, f, 1)

	result, err := f.EditPost(&PostEditRequest{
		UID:     1,
		PID:     post.PID,
		Content: post.Content,
		Title:   "Original Title",
	})
	if err != nil {
		t.Fatalf("EditPost failed: %v", err)
	}
	if result.Post.Changed {
		t.Error("Identical content and title must not report a change")
	}

	updated, err := f.getTopic(topic.TID)
	if err != nil {
		t.Fatalf("getTopic failed: %v", err)
	}
	if updated.Slug != topic.Slug {
		t.Errorf("Slug changed without a rename: %q -> %q", topic.Slug, updated.Slug)
	}
}

func TestScheduledMainPostReschedule(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 2, "moderator")

	future := nowMillis() + time.Hour.Milliseconds()
	tid, err := f.CreateTopic(&TopicCreateRequest{UID: 2, CID: 1, Title: "Scheduled Topic", Timestamp: future})
	if err != nil {
		t.Fatalf("CreateTopic failed: %v", err)
	}
	main, err := f.CreatePost(&PostCreateRequest{UID: 2, TID: tid, Content: "scheduled main post content", Timestamp: future, IsMain: true})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if err := f.store.SetObjectField(topicKey(tid), "mainPid", main.PID); err != nil {
		t.Fatalf("SetObjectField failed: %v", err)
	}

	// A main-post edit on a scheduled topic must carry a timestamp.
	_, err = f.EditPost(&PostEditRequest{UID: 2, PID: main.PID, Content: main.Content})
	if !errors.Is(err, ErrInvalidData) {
		t.Errorf("Expected invalid-data without timestamp, got %v", err)
	}

	newTime := future + 2*time.Hour.Milliseconds()
	_, err = f.EditPost(&PostEditRequest{UID: 2, PID: main.PID, Content: main.Content, Timestamp: newTime})
	if err != nil {
		t.Fatalf("Reschedule edit failed: %v", err)
	}

	stored, err := f.getPost(main.PID)
	if err != nil {
		t.Fatalf("getPost failed: %v", err)
	}
	if stored.Timestamp != newTime || stored.Edited != newTime {
		t.Errorf("Expected timestamp and edited %d, got %d/%d", newTime, stored.Timestamp, stored.Edited)
	}

	score, ok, err := f.store.SortedSetScore("topics:scheduled", formatInt(tid))
	if err != nil {
		t.Fatalf("SortedSetScore failed: %v", err)
	}
	if !ok || score != newTime {
		t.Errorf("Publish queue not rescheduled: score %d (exists=%v)", score, ok)
	}
}

func TestScheduledReplyEditMonotonic(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 2, "moderator")

	future := nowMillis() + time.Hour.Milliseconds()
	tid, err := f.CreateTopic(&TopicCreateRequest{UID: 2, CID: 1, Title: "Scheduled Topic", Timestamp: future})
	if err != nil {
		t.Fatalf("CreateTopic failed: %v", err)
	}
	main, err := f.CreatePost(&PostCreateRequest{UID: 2, TID: tid, Content: "scheduled main post content", Timestamp: future, IsMain: true})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if err := f.store.SetObjectField(topicKey(tid), "mainPid", main.PID); err != nil {
		t.Fatalf("SetObjectField failed: %v", err)
	}

	reply, err := f.Reply(&ReplyRequest{UID: 2, TID: tid, Content: "a reply that is long enough"})
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}

	result, err := f.EditPost(&PostEditRequest{UID: 2, PID: reply.PID, Content: "an edited reply that is long enough"})
	if err != nil {
		t.Fatalf("EditPost failed: %v", err)
	}
	if result.Post.Edited != reply.Timestamp+1 {
		t.Errorf("Expected edited %d, got %d", reply.Timestamp+1, result.Post.Edited)
	}

	second, err := f.EditPost(&PostEditRequest{UID: 2, PID: reply.PID, Content: "a twice edited reply body"})
	if err != nil {
		t.Fatalf("EditPost failed: %v", err)
	}
	if second.Post.Edited != result.Post.Edited+1 {
		t.Errorf("Edit trail not strictly increasing: %d then %d", result.Post.Edited, second.Post.Edited)
	}
}

func TestEditSavesDiffWhenHistoryEnabled(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	_, post := publishTestTopic(t, f, 1)

	if _, err := f.EditPost(&PostEditRequest{UID: 1, PID: post.PID, Content: "completely different content now"}); err != nil {
		t.Fatalf("EditPost failed: %v", err)
	}

	timestamps, err := f.diffs.Timestamps(post.PID)
	if err != nil {
		t.Fatalf("Timestamps failed: %v", err)
	}
	if len(timestamps) != 1 {
		t.Fatalf("Expected 1 diff entry, got %d", len(timestamps))
	}
	old, err := f.diffs.Content(post.PID, timestamps[0])
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	if old != "the original main post content" {
		t.Errorf("Diff stored wrong previous content: %q", old)
	}
}
