package forum

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/burrowbb/burrow/notify"
	"github.com/burrowbb/burrow/telemetry"
)

// postEditChannel carries cross-node cache invalidations. The payload is
// the pid whose rendered content changed.
const postEditChannel = "post:edit"

// PostCache holds rendered post content. Entries are invalidated locally
// on edit and across nodes via the signal bus; a missed invalidation only
// costs a re-render on the next read.
type PostCache struct {
	cache *lru.Cache[int64, string]
	bus   notify.Bus
}

// NewPostCache creates the rendered-content cache and subscribes it to
// edit signals from other nodes.
func NewPostCache(size int, bus notify.Bus) (*PostCache, error) {
	cache, err := lru.New[int64, string](size)
	if err != nil {
		return nil, err
	}
	c := &PostCache{cache: cache, bus: bus}
	if bus != nil {
		if _, err := bus.Subscribe(postEditChannel, c.onRemoteEdit); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Get returns the cached rendered content for the pid.
func (c *PostCache) Get(pid int64) (string, bool) {
	content, ok := c.cache.Get(pid)
	if ok {
		telemetry.PostCacheHits.With("hit").Inc()
	} else {
		telemetry.PostCacheHits.With("miss").Inc()
	}
	return content, ok
}

// Set stores rendered content for the pid.
func (c *PostCache) Set(pid int64, content string) {
	c.cache.Add(pid, content)
}

// Invalidate drops the local entry and signals other nodes to do the same.
func (c *PostCache) Invalidate(pid int64) {
	c.cache.Remove(pid)
	telemetry.PostCacheInvalidationsTotal.With("local").Inc()
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(postEditChannel, formatInt(pid)); err != nil {
		telemetry.SignalPublishFailuresTotal.Inc()
		log.Warn().Err(err).Int64("pid", pid).Msg("Unable to broadcast cache invalidation")
	}
}

func (c *PostCache) onRemoteEdit(payload string) {
	pid := toInt64(payload)
	if pid <= 0 {
		log.Debug().Str("payload", payload).Msg("Ignoring malformed edit signal")
		return
	}
	c.cache.Remove(pid)
	telemetry.PostCacheInvalidationsTotal.With("remote").Inc()
}
