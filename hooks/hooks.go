// Package hooks implements the extension-point bus gating forum operations.
//
// Two hook kinds exist. Filter hooks transform a payload and return it; they
// run synchronously in registration order and the first error aborts the
// chain, leaving the caller's payload untouched. Action hooks are
// fire-and-forget notifications whose return value is never consumed.
package hooks

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// FilterFn transforms a payload. Implementations must not mutate the payload
// on failure; the pre-hook value is reused when the chain aborts.
type FilterFn func(payload interface{}) (interface{}, error)

// ActionFn observes an event. Errors are logged, never propagated.
type ActionFn func(payload interface{})

// Bus is a registry of named filter and action hooks. Hooks fire in
// registration order. Safe for concurrent use; registration is expected at
// startup, firing on every request.
type Bus struct {
	mu      sync.RWMutex
	filters map[string][]FilterFn
	actions map[string][]ActionFn
}

// NewBus creates an empty hook bus.
func NewBus() *Bus {
	return &Bus{
		filters: make(map[string][]FilterFn),
		actions: make(map[string][]ActionFn),
	}
}

// RegisterFilter appends fn to the filter chain for name.
func (b *Bus) RegisterFilter(name string, fn FilterFn) {
	b.mu.Lock()
	b.filters[name] = append(b.filters[name], fn)
	b.mu.Unlock()
}

// RegisterAction appends fn to the action list for name.
func (b *Bus) RegisterAction(name string, fn ActionFn) {
	b.mu.Lock()
	b.actions[name] = append(b.actions[name], fn)
	b.mu.Unlock()
}

// FireFilter runs the filter chain for name over payload and returns the
// transformed payload. With no registered filters the payload is returned
// unchanged.
func (b *Bus) FireFilter(name string, payload interface{}) (interface{}, error) {
	b.mu.RLock()
	chain := b.filters[name]
	b.mu.RUnlock()

	for _, fn := range chain {
		next, err := fn(payload)
		if err != nil {
			return payload, fmt.Errorf("filter hook %q: %w", name, err)
		}
		payload = next
	}
	return payload, nil
}

// FireAction invokes all action hooks for name with payload. Callers pass a
// snapshot, not live state, so downstream mutation cannot alias back into
// the operation that fired the event.
func (b *Bus) FireAction(name string, payload interface{}) {
	b.mu.RLock()
	list := b.actions[name]
	b.mu.RUnlock()

	for _, fn := range list {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("hook", name).Interface("panic", r).Msg("Action hook panicked")
				}
			}()
			fn(payload)
		}()
	}
}
