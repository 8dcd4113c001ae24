// Package notify implements the cross-process signal bus. Server instances
// publish small string payloads on named channels; every other instance
// subscribed to the channel receives them. The forum core uses this for one
// thing only: telling peers to drop their cached rendering of an edited post.
//
// Delivery is at-least-once to connected subscribers and unordered.
// Subscribers must tolerate duplicates and a stale window; the payloads are
// invalidation keys, so re-processing one is harmless. An instance cut off
// from the broker misses signals and serves stale renders until its cache
// evicts them.
package notify

import (
	"fmt"
	"sync"

	"github.com/burrowbb/burrow/cfg"
)

// Handler receives payloads published on a subscribed channel.
type Handler func(payload string)

// Bus is a publish/subscribe transport keyed by channel name.
type Bus interface {
	Publish(channel, payload string) error
	Subscribe(channel string, fn Handler) (cancel func(), err error)
	Close() error
}

// Factory creates a Bus from the signal configuration.
type Factory func(config cfg.SignalConfiguration) (Bus, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[cfg.SignalBackendType]Factory)
)

// RegisterBackend makes a bus implementation available under the given name.
// Called from implementation init() functions.
func RegisterBackend(name cfg.SignalBackendType, factory Factory) {
	backendsMu.Lock()
	backends[name] = factory
	backendsMu.Unlock()
}

// NewBus creates the bus selected by config.Backend.
func NewBus(config cfg.SignalConfiguration) (Bus, error) {
	backendsMu.RLock()
	factory, ok := backends[config.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown signal backend %q", config.Backend)
	}
	return factory(config)
}

// channelSubject prepends the configured prefix so multiple deployments can
// share one broker.
func channelSubject(config cfg.SignalConfiguration, channel string) string {
	if config.ChannelPrefix == "" {
		return channel
	}
	return config.ChannelPrefix + "." + channel
}
