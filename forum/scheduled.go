package forum

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/burrowbb/burrow/telemetry"
)

// Scheduled topics are kept out of the public category indexes until
// their timestamp arrives. The "topics:scheduled" sorted set is the work
// queue, scored by publish time.

const scheduledPollInterval = 30 * time.Second

// pinScheduledTopic parks a freshly created scheduled topic: it joins the
// publish queue and is pinned so it never surfaces mid-list if a reader
// has elevated privileges.
func (f *Forum) pinScheduledTopic(topic *Topic) error {
	if err := f.store.SetObjectField(topicKey(topic.TID), "pinned", true); err != nil {
		return err
	}
	telemetry.ScheduledTopicsTotal.Inc()
	return f.store.SortedSetAdd("topics:scheduled", topic.Timestamp, formatInt(topic.TID))
}

// rescheduleTopic moves a still-unpublished topic to a new publish time.
// Every timestamp-scored index entry for the topic and its main post is
// rewritten to the new time.
func (f *Forum) rescheduleTopic(topic *Topic, mainPid, timestamp int64) error {
	tidStr := formatInt(topic.TID)
	cidStr := formatInt(topic.CID)

	if err := f.store.SortedSetAdd("topics:scheduled", timestamp, tidStr); err != nil {
		return err
	}
	if err := f.store.SetObject(topicKey(topic.TID), map[string]interface{}{
		"timestamp":    timestamp,
		"lastposttime": timestamp,
	}); err != nil {
		return err
	}
	if err := f.store.SetObject(postKey(mainPid), map[string]interface{}{
		"timestamp": timestamp,
		"edited":    timestamp,
	}); err != nil {
		return err
	}
	keys := []string{
		"topics:tid",
		"cid:" + cidStr + ":tids",
		"cid:" + cidStr + ":tids:create",
		"cid:" + cidStr + ":uid:" + formatInt(topic.UID) + ":tids",
	}
	if err := f.store.SortedSetsAdd(keys, timestamp, tidStr); err != nil {
		return err
	}
	if topic.UID > 0 {
		if err := f.store.SortedSetAdd("uid:"+formatInt(topic.UID)+":topics", timestamp, tidStr); err != nil {
			return err
		}
	}
	log.Info().Int64("tid", topic.TID).Int64("timestamp", timestamp).Msg("Rescheduled topic")
	return nil
}

// RunScheduledPublisher polls the schedule queue and publishes every topic
// whose time has come. Runs until the context is cancelled.
func (f *Forum) RunScheduledPublisher(ctx context.Context) {
	ticker := time.NewTicker(scheduledPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.PublishDueTopics(); err != nil {
				log.Error().Err(err).Msg("Scheduled topic publish pass failed")
			}
		}
	}
}

// PublishDueTopics publishes every scheduled topic whose publish time has
// passed.
func (f *Forum) PublishDueTopics() error {
	members, err := f.store.SortedSetRange("topics:scheduled", 0, -1)
	if err != nil {
		return err
	}
	now := nowMillis()
	for _, member := range members {
		tid := toInt64(member)
		score, ok, err := f.store.SortedSetScore("topics:scheduled", member)
		if err != nil {
			return err
		}
		if !ok || score > now {
			continue
		}
		if err := f.publishScheduledTopic(tid); err != nil {
			log.Error().Err(err).Int64("tid", tid).Msg("Unable to publish scheduled topic")
			continue
		}
	}
	return nil
}

func (f *Forum) publishScheduledTopic(tid int64) error {
	topic, err := f.getTopic(tid)
	if err != nil {
		return err
	}
	if err := f.store.SetObject(topicKey(tid), map[string]interface{}{
		"scheduled": nil,
		"pinned":    nil,
	}); err != nil {
		return err
	}
	if err := f.store.SortedSetRemove("topics:scheduled", formatInt(tid)); err != nil {
		return err
	}
	if err := f.store.SortedSetAdd("topics:recent", topic.LastPostTime, formatInt(tid)); err != nil {
		return err
	}
	mainPost, err := f.getPost(topic.MainPID)
	if err == nil {
		if err := f.users.OnNewPostMade(mainPost); err != nil {
			return err
		}
		if err := f.groups.OnNewPostMade(mainPost); err != nil {
			return err
		}
		if err := f.categories.OnNewPostMade(topic.CID, topic.Pinned, mainPost); err != nil {
			return err
		}
	}

	// Follower fan-out was deferred at create time; it fires now that the
	// topic is visible.
	tags, err := f.tags.TopicTags(tid)
	if err != nil {
		return err
	}
	if err := f.notifications.NotifyTagFollowers(topic, tags, topic.UID); err != nil {
		log.Warn().Err(err).Int64("tid", tid).Msg("Unable to notify tag followers")
	}
	if err := f.notifications.NotifyCategoryFollowers(f.categories, topic); err != nil {
		log.Warn().Err(err).Int64("tid", tid).Msg("Unable to notify category followers")
	}
	if err := f.notifications.NotifyAuthorFollowers(topic); err != nil {
		log.Warn().Err(err).Int64("tid", tid).Msg("Unable to notify author followers")
	}

	log.Info().Int64("tid", tid).Msg("Published scheduled topic")
	f.hooks.FireAction("action:topic.publish", map[string]interface{}{"topic": topic})
	return nil
}
