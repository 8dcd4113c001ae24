package store

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Counter provides thread-safe, write-through cached counters backed by Pebble.
// Counters are loaded on first access and cached in memory. All writes are
// persisted immediately, so an allocated post or topic ID is never handed out
// twice across restarts.
type Counter struct {
	db     *pebble.DB
	prefix string

	mu       sync.RWMutex
	counters map[string]*counterEntry
	lruOrder []string // Simple LRU tracking
	maxSize  int      // Max cached counters
}

type counterEntry struct {
	mu    sync.Mutex
	value int64
}

// NewCounter creates a new persistent counter with LRU cache.
// prefix is prepended to all counter names for namespacing.
// maxCached limits memory usage (0 = unlimited).
func NewCounter(db *pebble.DB, prefix string, maxCached int) *Counter {
	if maxCached <= 0 {
		maxCached = 1000 // Default max
	}
	return &Counter{
		db:       db,
		prefix:   prefix,
		counters: make(map[string]*counterEntry),
		lruOrder: make([]string, 0, maxCached),
		maxSize:  maxCached,
	}
}

// key returns the Pebble key for a counter name
func (c *Counter) key(name string) []byte {
	return []byte(c.prefix + name)
}

// getOrLoad gets counter from cache or loads from Pebble
func (c *Counter) getOrLoad(name string) (*counterEntry, error) {
	// Fast path: check cache with read lock
	c.mu.RLock()
	entry, exists := c.counters[name]
	c.mu.RUnlock()

	if exists {
		return entry, nil
	}

	// Slow path: load from DB and cache
	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if entry, exists = c.counters[name]; exists {
		return entry, nil
	}

	// Load from Pebble
	var value int64
	val, closer, err := c.db.Get(c.key(name))
	if err == nil {
		if len(val) >= 8 {
			value = int64(binary.BigEndian.Uint64(val))
		}
		closer.Close()
	} else if err != pebble.ErrNotFound {
		return nil, err
	}
	// ErrNotFound is fine - default to 0

	// Evict if at capacity (simple LRU)
	if len(c.counters) >= c.maxSize && c.maxSize > 0 {
		c.evictOldest()
	}

	entry = &counterEntry{value: value}
	c.counters[name] = entry
	c.lruOrder = append(c.lruOrder, name)

	return entry, nil
}

// evictOldest removes the oldest cached counter (must hold write lock)
func (c *Counter) evictOldest() {
	if len(c.lruOrder) == 0 {
		return
	}
	oldest := c.lruOrder[0]
	c.lruOrder = c.lruOrder[1:]
	delete(c.counters, oldest)
}

// persist writes the counter value to Pebble
func (c *Counter) persist(name string, value int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(value))
	return c.db.Set(c.key(name), buf, pebble.NoSync)
}

// Load returns the current value of a counter
func (c *Counter) Load(name string) (int64, error) {
	entry, err := c.getOrLoad(name)
	if err != nil {
		return 0, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.value, nil
}

// Store sets a counter to a specific value (write-through)
func (c *Counter) Store(name string, value int64) error {
	entry, err := c.getOrLoad(name)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := c.persist(name, value); err != nil {
		return err
	}
	entry.value = value
	return nil
}

// Inc atomically increments a counter by delta and returns the new value (write-through)
func (c *Counter) Inc(name string, delta int64) (int64, error) {
	entry, err := c.getOrLoad(name)
	if err != nil {
		return 0, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	newValue := entry.value + delta
	if err := c.persist(name, newValue); err != nil {
		return entry.value, err
	}
	entry.value = newValue
	return newValue, nil
}

// Invalidate removes a counter from cache (forces reload on next access)
func (c *Counter) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, name)
	// Remove from LRU order
	for i, n := range c.lruOrder {
		if n == name {
			c.lruOrder = append(c.lruOrder[:i], c.lruOrder[i+1:]...)
			break
		}
	}
}
