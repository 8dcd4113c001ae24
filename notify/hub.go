package notify

import (
	"sync"
	"sync/atomic"

	"github.com/burrowbb/burrow/cfg"
)

// defaultSignalBufferSize is the buffer size for subscription channels.
// Sized to absorb typical bursts; when a subscriber falls further behind,
// publishers block on it rather than drop, preserving the bus's delivery
// contract.
const defaultSignalBufferSize = 16

func init() {
	RegisterBackend(cfg.SignalLocal, func(config cfg.SignalConfiguration) (Bus, error) {
		return NewHub(), nil
	})
}

// subscription represents a single subscriber.
type subscription struct {
	id      uint64
	channel string
	ch      chan string
	done    chan struct{}
	closed  atomic.Bool
}

// close signals the subscription's drain goroutine and any blocked
// publishers. Idempotent.
func (s *subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
}

// Hub is the in-process Bus used for single-node deployments and tests.
// Thread-safe. Each subscriber drains its own buffered channel on a
// dedicated goroutine; a live subscriber receives every payload published
// on its channel.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        atomic.Uint64
	wg            sync.WaitGroup
}

// NewHub creates a new in-process signal hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[uint64]*subscription),
	}
}

// Publish sends payload to all subscribers of channel. Blocks on a
// subscriber whose buffer is full until it catches up or cancels;
// cancelled subscribers are skipped.
func (h *Hub) Publish(channel, payload string) error {
	h.mu.RLock()
	targets := make([]*subscription, 0, len(h.subscriptions))
	for _, sub := range h.subscriptions {
		if sub.channel == channel {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- payload:
		case <-sub.done:
		}
	}
	return nil
}

// Subscribe registers fn for payloads on channel. The cancel function is
// idempotent.
func (h *Hub) Subscribe(channel string, fn Handler) (func(), error) {
	sub := &subscription{
		id:      h.nextID.Add(1),
		channel: channel,
		ch:      make(chan string, defaultSignalBufferSize),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.subscriptions[sub.id] = sub
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case payload := <-sub.ch:
				fn(payload)
			case <-sub.done:
				// Drain what publishers already enqueued.
				for {
					select {
					case payload := <-sub.ch:
						fn(payload)
					default:
						return
					}
				}
			}
		}
	}()

	cancel := func() {
		h.unsubscribe(sub.id)
	}
	return cancel, nil
}

// unsubscribe removes a subscription and stops its drain goroutine.
func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscriptions[id]
	if ok {
		delete(h.subscriptions, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Close cancels all subscriptions and waits for handlers to drain.
func (h *Hub) Close() error {
	h.mu.Lock()
	subs := h.subscriptions
	h.subscriptions = make(map[uint64]*subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	h.wg.Wait()
	return nil
}
