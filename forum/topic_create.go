package forum

import (
	"strings"
)

// TopicCreateRequest carries the inputs for CreateTopic. Tags must
// already be filtered and validated by the caller. A Timestamp in the
// future marks the topic scheduled.
type TopicCreateRequest struct {
	UID       int64
	CID       int64
	Title     string
	Timestamp int64
	Tags      []string
}

// CreateTopic allocates a topic id, persists the record and maintains
// the topic indexes. No content validation happens here; the publication
// orchestrator owns title and length checks.
func (f *Forum) CreateTopic(req *TopicCreateRequest) (int64, error) {
	tid, err := f.store.Incr("nextTid")
	if err != nil {
		return 0, err
	}
	timestamp := req.Timestamp
	if timestamp == 0 {
		timestamp = nowMillis()
	}
	scheduled := timestamp > nowMillis()

	topic := &Topic{
		TID:          tid,
		UID:          req.UID,
		CID:          req.CID,
		Title:        req.Title,
		Slug:         topicSlug(tid, req.Title),
		Timestamp:    timestamp,
		LastPostTime: timestamp,
		Tags:         strings.Join(req.Tags, ","),
		Scheduled:    scheduled,
	}

	result, err := f.hooks.FireFilter("filter:topic.create", topic)
	if err != nil {
		return 0, err
	}
	if t, ok := result.(*Topic); ok {
		topic = t
	}

	if err := f.store.SetObject(topicKey(topic.TID), topicToFields(topic)); err != nil {
		return 0, err
	}

	tidStr := formatInt(topic.TID)
	cidStr := formatInt(topic.CID)
	plan := NewCommitPlan("topic.create")
	plan.Add("index-topic", func() error {
		keys := []string{
			"topics:tid",
			"cid:" + cidStr + ":tids",
			"cid:" + cidStr + ":tids:create",
			"cid:" + cidStr + ":uid:" + formatInt(topic.UID) + ":tids",
		}
		return f.store.SortedSetsAdd(keys, timestamp, tidStr)
	})
	plan.Add("zero-counters", func() error {
		keys := []string{
			"cid:" + cidStr + ":tids:votes",
			"cid:" + cidStr + ":tids:posts",
			"cid:" + cidStr + ":tids:views",
		}
		return f.store.SortedSetsAdd(keys, 0, tidStr)
	})
	plan.Add("recency-index", func() error {
		// Scheduled topics wait in the publish queue instead of the
		// public recent list.
		if scheduled {
			return f.store.SortedSetAdd("topics:scheduled", timestamp, tidStr)
		}
		return f.store.SortedSetAdd("topics:recent", timestamp, tidStr)
	})
	plan.Add("topic-counters", func() error {
		if _, err := f.store.Incr("topicCount"); err != nil {
			return err
		}
		_, err := f.store.IncrObjectField(categoryKey(topic.CID), "topic_count", 1)
		return err
	})
	plan.AddIf(len(req.Tags) > 0, "register-tags", func() error {
		return f.tags.Create(req.Tags, topic.TID, timestamp)
	})
	plan.AddIf(topic.UID > 0, "user-topic-index", func() error {
		return f.users.AddTopicIDToUser(topic.UID, topic.TID, timestamp)
	})
	if err := plan.Run(); err != nil {
		return 0, err
	}

	if scheduled {
		if err := f.pinScheduledTopic(topic); err != nil {
			return 0, err
		}
	}

	snapshot := *topic
	f.hooks.FireAction("action:topic.save", &snapshot)
	return topic.TID, nil
}
