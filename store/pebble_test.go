package store

import (
	"fmt"
	"sync"
	"testing"
)

func setupTestStore(t *testing.T) (*PebbleStore, func()) {
	t.Helper()
	dir := t.TempDir()

	s, err := NewPebbleStore(dir, DefaultPebbleOptions())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return s, func() {
		s.Close()
	}
}

func TestPebbleStore_ObjectRoundTrip(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	err := s.SetObject("post:1", map[string]interface{}{
		"pid":     int64(1),
		"content": "hello",
	})
	if err != nil {
		t.Fatalf("SetObject failed: %v", err)
	}

	obj, err := s.GetObject("post:1")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	if got := obj["content"]; got != "hello" {
		t.Errorf("Expected content hello, got %v", got)
	}

	fields, err := s.GetObjectFields("post:1", []string{"pid", "missing"})
	if err != nil {
		t.Fatalf("GetObjectFields failed: %v", err)
	}
	if _, ok := fields["missing"]; ok {
		t.Error("Expected missing field to be absent")
	}
}

func TestPebbleStore_SetObjectMergesFields(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if err := s.SetObject("topic:1", map[string]interface{}{"title": "a", "cid": int64(2)}); err != nil {
		t.Fatalf("SetObject failed: %v", err)
	}
	if err := s.SetObject("topic:1", map[string]interface{}{"title": "b"}); err != nil {
		t.Fatalf("SetObject failed: %v", err)
	}

	obj, err := s.GetObject("topic:1")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	if obj["title"] != "b" {
		t.Errorf("Expected updated title, got %v", obj["title"])
	}
	if got := obj["cid"]; got == nil {
		t.Error("Expected cid to survive partial update")
	}
}

func TestPebbleStore_NilFieldDeletes(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if err := s.SetObject("topic:1", map[string]interface{}{"scheduled": true}); err != nil {
		t.Fatalf("SetObject failed: %v", err)
	}
	if err := s.SetObject("topic:1", map[string]interface{}{"scheduled": nil}); err != nil {
		t.Fatalf("SetObject failed: %v", err)
	}
	obj, err := s.GetObject("topic:1")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	if _, ok := obj["scheduled"]; ok {
		t.Error("Expected scheduled field to be deleted")
	}
}

func TestPebbleStore_IncrObjectFieldConcurrent(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	const workers = 16
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := s.IncrObjectField("topic:1", "postcount", 1); err != nil {
					t.Errorf("IncrObjectField failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	fields, err := s.GetObjectFields("topic:1", []string{"postcount"})
	if err != nil {
		t.Fatalf("GetObjectFields failed: %v", err)
	}
	if got := toInt64(fields["postcount"]); got != workers*perWorker {
		t.Errorf("Expected %d, got %d", workers*perWorker, got)
	}
}

func TestPebbleStore_SortedSetOrdering(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	scores := []int64{300, 100, 200}
	for i, score := range scores {
		if err := s.SortedSetAdd("topics:tid", score, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("SortedSetAdd failed: %v", err)
		}
	}

	members, err := s.SortedSetRange("topics:tid", 0, -1)
	if err != nil {
		t.Fatalf("SortedSetRange failed: %v", err)
	}
	expected := []string{"m1", "m2", "m0"}
	if len(members) != len(expected) {
		t.Fatalf("Expected %d members, got %d", len(expected), len(members))
	}
	for i, m := range expected {
		if members[i] != m {
			t.Errorf("Position %d: expected %s, got %s", i, m, members[i])
		}
	}
}

func TestPebbleStore_SortedSetRescore(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if err := s.SortedSetAdd("k", 10, "a"); err != nil {
		t.Fatalf("SortedSetAdd failed: %v", err)
	}
	if err := s.SortedSetAdd("k", 20, "a"); err != nil {
		t.Fatalf("SortedSetAdd failed: %v", err)
	}

	score, ok, err := s.SortedSetScore("k", "a")
	if err != nil {
		t.Fatalf("SortedSetScore failed: %v", err)
	}
	if !ok || score != 20 {
		t.Errorf("Expected score 20, got %d (exists=%v)", score, ok)
	}

	card, err := s.SortedSetCard("k")
	if err != nil {
		t.Fatalf("SortedSetCard failed: %v", err)
	}
	if card != 1 {
		t.Errorf("Expected cardinality 1 after rescore, got %d", card)
	}
}

func TestPebbleStore_SortedSetRemove(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if err := s.SortedSetAdd("k", 1, "a"); err != nil {
		t.Fatalf("SortedSetAdd failed: %v", err)
	}
	if err := s.SortedSetRemove("k", "a"); err != nil {
		t.Fatalf("SortedSetRemove failed: %v", err)
	}
	isMember, err := s.IsSortedSetMember("k", "a")
	if err != nil {
		t.Fatalf("IsSortedSetMember failed: %v", err)
	}
	if isMember {
		t.Error("Expected member to be removed")
	}
}

func TestPebbleStore_CounterMonotonic(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	var prev int64
	for i := 0; i < 10; i++ {
		v, err := s.Incr("nextPid")
		if err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
		if v <= prev {
			t.Errorf("Counter not monotonic: %d after %d", v, prev)
		}
		prev = v
	}

	v, err := s.CounterValue("nextPid")
	if err != nil {
		t.Fatalf("CounterValue failed: %v", err)
	}
	if v != prev {
		t.Errorf("Expected counter value %d, got %d", prev, v)
	}
}

func TestExistsFilter(t *testing.T) {
	f := NewExistsFilter(0)

	if f.MightExist(42) {
		t.Error("Empty filter should report not-exists")
	}
	f.Add(42)
	if !f.MightExist(42) {
		t.Error("Added id should be reported as possibly existing")
	}
}

func TestExistsFilterFloor(t *testing.T) {
	f := NewExistsFilter(10)

	if !f.MightExist(10) {
		t.Error("Ids at the floor predate the filter and must report as possible")
	}
	if !f.MightExist(3) {
		t.Error("Ids below the floor predate the filter and must report as possible")
	}
	if f.MightExist(11) {
		t.Error("Unseen id above the floor should report not-exists")
	}
	f.Add(11)
	if !f.MightExist(11) {
		t.Error("Added id should be reported as possibly existing")
	}
}
