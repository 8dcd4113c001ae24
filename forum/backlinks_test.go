package forum

import (
	"testing"
)

func TestSyncBacklinksReconciles(t *testing.T) {
	f := setupTestForum(t)
	seedTopic(t, f, &Topic{TID: 2, UID: 5, CID: 1, Timestamp: nowMillis()})
	seedTopic(t, f, &Topic{TID: 3, UID: 6, CID: 1, Timestamp: nowMillis()})
	err := f.store.SetObject(postKey(9), map[string]interface{}{"pid": int64(9), "tid": int64(3)})
	if err != nil {
		t.Fatalf("Failed to seed post: %v", err)
	}

	post := &Post{PID: 50, UID: 1, TID: 1, Content: "see /topic/2 and /post/9"}
	added, err := f.SyncBacklinks(post)
	if err != nil {
		t.Fatalf("SyncBacklinks failed: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("Expected 2 new links, got %v", added)
	}
	for _, tid := range []string{"2", "3"} {
		linked, err := f.store.IsSortedSetMember("tid:"+tid+":backlinks", "50")
		if err != nil {
			t.Fatalf("IsSortedSetMember failed: %v", err)
		}
		if !linked {
			t.Errorf("Reverse entry missing for tid %s", tid)
		}
	}

	// Unchanged content is not a new link.
	added, err = f.SyncBacklinks(post)
	if err != nil {
		t.Fatalf("SyncBacklinks failed: %v", err)
	}
	if len(added) != 0 {
		t.Errorf("Re-sync reported new links: %v", added)
	}

	// Dropping a reference removes both directions.
	post.Content = "see /topic/2 only now"
	added, err = f.SyncBacklinks(post)
	if err != nil {
		t.Fatalf("SyncBacklinks failed: %v", err)
	}
	if len(added) != 0 {
		t.Errorf("Removal reported new links: %v", added)
	}
	stillLinked, err := f.store.IsSortedSetMember("tid:3:backlinks", "50")
	if err != nil {
		t.Fatalf("IsSortedSetMember failed: %v", err)
	}
	if stillLinked {
		t.Error("Dropped reference still present in reverse index")
	}
	card, err := f.store.SortedSetCard("pid:50:backlinks")
	if err != nil {
		t.Fatalf("SortedSetCard failed: %v", err)
	}
	if card != 1 {
		t.Errorf("Expected 1 remaining backlink, got %d", card)
	}
}

func TestBacklinkNotifiesTopicOwnerOnce(t *testing.T) {
	f := setupTestForum(t)
	seedCategory(t, f, 1)
	seedUser(t, f, 1, "user")
	seedUser(t, f, 2, "user")
	seedTopic(t, f, &Topic{TID: 1, UID: 1, CID: 1, Timestamp: nowMillis()})
	seedTopic(t, f, &Topic{TID: 2, UID: 2, CID: 1, Timestamp: nowMillis()})

	post, err := f.Reply(&ReplyRequest{UID: 1, TID: 1, Content: "as discussed in /topic/2 earlier"})
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}

	nids, err := f.store.SortedSetRange("uid:2:notifications", 0, -1)
	if err != nil {
		t.Fatalf("SortedSetRange failed: %v", err)
	}
	if len(nids) != 1 {
		t.Fatalf("Expected 1 notification for the linked topic owner, got %d", len(nids))
	}
	fields, err := f.store.GetObjectFields("notification:"+nids[0], []string{"type"})
	if err != nil {
		t.Fatalf("GetObjectFields failed: %v", err)
	}
	if fields["type"] != "backlink" {
		t.Errorf("Expected backlink notification, got %v", fields["type"])
	}

	// Editing without changing the links must not notify again.
	_, err = f.EditPost(&PostEditRequest{UID: 1, PID: post.PID, Content: post.Content + " (edited)"})
	if err != nil {
		t.Fatalf("EditPost failed: %v", err)
	}
	nids, err = f.store.SortedSetRange("uid:2:notifications", 0, -1)
	if err != nil {
		t.Fatalf("SortedSetRange failed: %v", err)
	}
	if len(nids) != 1 {
		t.Errorf("Expected still 1 notification after edit, got %d", len(nids))
	}
}

func TestSyncUploadsReconciles(t *testing.T) {
	f := setupTestForum(t)

	post := &Post{
		PID:     60,
		UID:     1,
		TID:     1,
		Content: "![a](/assets/uploads/files/one.png) and ![b](/assets/uploads/files/two.png)",
	}
	if err := f.SyncUploads(post); err != nil {
		t.Fatalf("SyncUploads failed: %v", err)
	}
	card, err := f.store.SortedSetCard("pid:60:uploads")
	if err != nil {
		t.Fatalf("SortedSetCard failed: %v", err)
	}
	if card != 2 {
		t.Fatalf("Expected 2 tracked uploads, got %d", card)
	}
	oneHash := uploadHash("files/one.png")
	referenced, err := f.store.IsSortedSetMember("upload:"+oneHash+":pids", "60")
	if err != nil {
		t.Fatalf("IsSortedSetMember failed: %v", err)
	}
	if !referenced {
		t.Error("Upload missing reverse pid entry")
	}
	fields, err := f.store.GetObjectFields("upload:"+oneHash, []string{"path"})
	if err != nil {
		t.Fatalf("GetObjectFields failed: %v", err)
	}
	if fields["path"] != "files/one.png" {
		t.Errorf("Expected stored path, got %v", fields["path"])
	}

	// Removing a reference detaches it from the post both ways.
	post.Content = "![a](/assets/uploads/files/one.png) only"
	if err := f.SyncUploads(post); err != nil {
		t.Fatalf("SyncUploads failed: %v", err)
	}
	card, err = f.store.SortedSetCard("pid:60:uploads")
	if err != nil {
		t.Fatalf("SortedSetCard failed: %v", err)
	}
	if card != 1 {
		t.Errorf("Expected 1 tracked upload, got %d", card)
	}
	twoHash := uploadHash("files/two.png")
	referenced, err = f.store.IsSortedSetMember("upload:"+twoHash+":pids", "60")
	if err != nil {
		t.Fatalf("IsSortedSetMember failed: %v", err)
	}
	if referenced {
		t.Error("Dropped upload still referenced by the post")
	}
}
