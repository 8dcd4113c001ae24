package store

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"

	"github.com/burrowbb/burrow/cfg"
	"github.com/burrowbb/burrow/encoding"
)

// Key prefixes for Pebble (sorted for efficient iteration)
//
// Forum keys ("post:42", "cid:3:tids") never contain '/', so '/' is safe as
// the internal separator.
const (
	pebblePrefixObject  = "/obj/"     // /obj/{key}
	pebblePrefixZSet    = "/zset/"    // /zset/{key}/{score:016x}/{member}
	pebblePrefixZMember = "/zmbr/"    // /zmbr/{key}/{member}
	pebblePrefixCounter = "/counter/" // /counter/{name}
)

// Sharded locks for object read-modify-write serialization
const objectLockShards = 256

// PebbleStore implements Store using Pebble
type PebbleStore struct {
	db   *pebble.DB
	path string

	// Persistent counters for ID allocation
	counters *Counter

	// Sharded locks serializing field-level mutations per key
	objectLocks [objectLockShards]sync.Mutex

	// Idempotent close
	closed atomic.Bool
}

// PebbleStoreOptions configures the underlying Pebble instance
type PebbleStoreOptions struct {
	CacheSizeMB    int
	MemTableSizeMB int
	MemTableCount  int
}

// DefaultPebbleOptions returns Pebble options from cfg.Config.Store
func DefaultPebbleOptions() PebbleStoreOptions {
	s := cfg.Config.Store
	return PebbleStoreOptions{
		CacheSizeMB:    s.CacheSizeMB,
		MemTableSizeMB: s.MemTableSizeMB,
		MemTableCount:  s.MemTableCount,
	}
}

// pebbleLogger wraps zerolog for Pebble
type pebbleLogger struct{}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Msgf("[pebble] "+format, args...)
}

// NewPebbleStore opens (or creates) a Pebble-backed forum store at path.
func NewPebbleStore(path string, opts PebbleStoreOptions) (*PebbleStore, error) {
	cache := pebble.NewCache(int64(opts.CacheSizeMB) << 20)
	defer cache.Unref() // DB will hold reference

	pebbleOpts := &pebble.Options{
		Cache:                       cache,
		MemTableSize:                uint64(opts.MemTableSizeMB) << 20,
		MemTableStopWritesThreshold: opts.MemTableCount,
		Logger:                      &pebbleLogger{},
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	store := &PebbleStore{
		db:   db,
		path: path,
	}
	store.counters = NewCounter(db, pebblePrefixCounter, 100)

	return store, nil
}

// lockFor returns the shard lock serializing mutations of the given key
func (s *PebbleStore) lockFor(key string) *sync.Mutex {
	return &s.objectLocks[xxhash.Sum64String(key)%objectLockShards]
}

func objectKey(key string) []byte {
	return []byte(pebblePrefixObject + key)
}

func zsetEntryKey(key string, score int64, member string) []byte {
	// Scores are non-negative (timestamps or counts); hex encoding keeps
	// byte order equal to numeric order.
	return []byte(fmt.Sprintf("%s%s/%016x/%s", pebblePrefixZSet, key, uint64(score), member))
}

func zsetMemberKey(key, member string) []byte {
	return []byte(pebblePrefixZMember + key + "/" + member)
}

// prefixUpperBound returns prefix + 0xFF... for range iteration
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix)+8)
	copy(upper, prefix)
	for i := len(prefix); i < len(upper); i++ {
		upper[i] = 0xFF
	}
	return upper
}

// getObjectLocked reads and decodes an object without taking the shard lock.
// Returns nil map if the object does not exist.
func (s *PebbleStore) getObjectLocked(key string) (map[string]interface{}, error) {
	val, closer, err := s.db.Get(objectKey(key))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}
	defer closer.Close()

	var fields map[string]interface{}
	if err := encoding.Unmarshal(val, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode object %q: %w", key, err)
	}
	return fields, nil
}

func (s *PebbleStore) setObjectLocked(key string, fields map[string]interface{}) error {
	data, err := encoding.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode object %q: %w", key, err)
	}
	return s.db.Set(objectKey(key), data, pebble.NoSync)
}

// GetObject returns the full field map for key, or nil if absent.
func (s *PebbleStore) GetObject(key string) (map[string]interface{}, error) {
	return s.getObjectLocked(key)
}

// GetObjectFields returns only the requested fields. Absent fields are
// omitted from the result; an absent object yields an empty map.
func (s *PebbleStore) GetObjectFields(key string, fields []string) (map[string]interface{}, error) {
	obj, err := s.getObjectLocked(key)
	if err != nil {
		return nil, err
	}
	result := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v, ok := obj[f]; ok {
			result[f] = v
		}
	}
	return result, nil
}

// SetObject merges fields into the object at key. A nil field value removes
// the field.
func (s *PebbleStore) SetObject(key string, fields map[string]interface{}) error {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.getObjectLocked(key)
	if err != nil {
		return err
	}
	if existing == nil {
		existing = make(map[string]interface{}, len(fields))
	}
	for f, v := range fields {
		if v == nil {
			delete(existing, f)
			continue
		}
		existing[f] = v
	}
	return s.setObjectLocked(key, existing)
}

// SetObjectField sets a single field on the object at key.
func (s *PebbleStore) SetObjectField(key, field string, value interface{}) error {
	return s.SetObject(key, map[string]interface{}{field: value})
}

// IncrObjectField atomically increments a numeric field and returns the new
// value. A missing object or field counts as zero.
func (s *PebbleStore) IncrObjectField(key, field string, delta int64) (int64, error) {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.getObjectLocked(key)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		existing = make(map[string]interface{}, 1)
	}
	value := toInt64(existing[field]) + delta
	existing[field] = value
	if err := s.setObjectLocked(key, existing); err != nil {
		return 0, err
	}
	return value, nil
}

// DeleteObject removes the object at key.
func (s *PebbleStore) DeleteObject(key string) error {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return s.db.Delete(objectKey(key), pebble.NoSync)
}

// Exists reports whether an object is stored at key.
func (s *PebbleStore) Exists(key string) (bool, error) {
	_, closer, err := s.db.Get(objectKey(key))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

// SortedSetAdd adds member to the sorted set at key with the given score,
// replacing any previous score for that member.
func (s *PebbleStore) SortedSetAdd(key string, score int64, member string) error {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return s.sortedSetAddLocked(key, score, member)
}

func (s *PebbleStore) sortedSetAddLocked(key string, score int64, member string) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	// Drop the previous score entry so a member appears at most once
	oldScore, exists, err := s.sortedSetScoreLocked(key, member)
	if err != nil {
		return err
	}
	if exists {
		if err := batch.Delete(zsetEntryKey(key, oldScore, member), nil); err != nil {
			return err
		}
	}

	scoreBuf := []byte(fmt.Sprintf("%016x", uint64(score)))
	if err := batch.Set(zsetEntryKey(key, score, member), nil, nil); err != nil {
		return err
	}
	if err := batch.Set(zsetMemberKey(key, member), scoreBuf, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.NoSync)
}

// SortedSetsAdd adds member with the same score to multiple sorted sets.
func (s *PebbleStore) SortedSetsAdd(keys []string, score int64, member string) error {
	for _, key := range keys {
		if err := s.SortedSetAdd(key, score, member); err != nil {
			return err
		}
	}
	return nil
}

// SortedSetRemove removes member from the sorted set at key.
func (s *PebbleStore) SortedSetRemove(key, member string) error {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	score, exists, err := s.sortedSetScoreLocked(key, member)
	if err != nil || !exists {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(zsetEntryKey(key, score, member), nil); err != nil {
		return err
	}
	if err := batch.Delete(zsetMemberKey(key, member), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.NoSync)
}

// SortedSetsRemove removes member from multiple sorted sets.
func (s *PebbleStore) SortedSetsRemove(keys []string, member string) error {
	for _, key := range keys {
		if err := s.SortedSetRemove(key, member); err != nil {
			return err
		}
	}
	return nil
}

func (s *PebbleStore) sortedSetScoreLocked(key, member string) (int64, bool, error) {
	val, closer, err := s.db.Get(zsetMemberKey(key, member))
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer closer.Close()

	var score uint64
	if _, err := fmt.Sscanf(string(val), "%016x", &score); err != nil {
		return 0, false, fmt.Errorf("corrupt score for %q/%q: %w", key, member, err)
	}
	return int64(score), true, nil
}

// SortedSetScore returns the score of member in the sorted set at key.
func (s *PebbleStore) SortedSetScore(key, member string) (int64, bool, error) {
	return s.sortedSetScoreLocked(key, member)
}

// IsSortedSetMember reports whether member is in the sorted set at key.
func (s *PebbleStore) IsSortedSetMember(key, member string) (bool, error) {
	_, exists, err := s.sortedSetScoreLocked(key, member)
	return exists, err
}

// SortedSetRange returns members ordered by ascending score, from index
// start to stop inclusive. stop = -1 means "to the end".
func (s *PebbleStore) SortedSetRange(key string, start, stop int) ([]string, error) {
	prefix := []byte(pebblePrefixZSet + key + "/")

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var members []string
	index := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if stop >= 0 && index > stop {
			break
		}
		if index >= start {
			// Key layout: {prefix}{score:016x}/{member}
			rest := string(iter.Key())[len(prefix):]
			if len(rest) > 17 {
				members = append(members, rest[17:])
			}
		}
		index++
	}
	return members, iter.Error()
}

// SortedSetCard returns the number of members in the sorted set at key.
func (s *PebbleStore) SortedSetCard(key string) (int64, error) {
	prefix := []byte(pebblePrefixZSet + key + "/")

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var count int64
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		count++
	}
	return count, iter.Error()
}

// Incr atomically increments the named counter and returns the new value.
func (s *PebbleStore) Incr(name string) (int64, error) {
	return s.counters.Inc(name, 1)
}

// CounterValue returns the current value of the named counter.
func (s *PebbleStore) CounterValue(name string) (int64, error) {
	return s.counters.Load(name)
}

// Close closes the underlying Pebble instance. Safe to call more than once.
func (s *PebbleStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// toInt64 coerces msgpack-decoded numeric values to int64.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case uint32:
		return int64(n)
	case uint16:
		return int64(n)
	case uint8:
		return int64(n)
	case uint:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	default:
		return 0
	}
}
