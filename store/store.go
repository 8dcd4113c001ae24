package store

// Store provides keyed record storage, time-ordered secondary indexes and
// persistent counters for the forum core. Records are flat field maps keyed
// by strings like "post:42" and "topic:7". Secondary indexes are sorted sets
// ordered by an int64 score (usually a millisecond timestamp).
//
// All implementations must be safe for concurrent use. Field-level mutations
// (SetObjectField, IncrObjectField) on the same key are serialized so that
// concurrent increments never lose updates.
type Store interface {
	// Objects (field maps)
	GetObject(key string) (map[string]interface{}, error)
	GetObjectFields(key string, fields []string) (map[string]interface{}, error)
	SetObject(key string, fields map[string]interface{}) error
	SetObjectField(key, field string, value interface{}) error
	IncrObjectField(key, field string, delta int64) (int64, error)
	DeleteObject(key string) error
	Exists(key string) (bool, error)

	// Sorted sets
	SortedSetAdd(key string, score int64, member string) error
	SortedSetsAdd(keys []string, score int64, member string) error
	SortedSetRemove(key, member string) error
	SortedSetsRemove(keys []string, member string) error
	SortedSetScore(key, member string) (int64, bool, error)
	SortedSetRange(key string, start, stop int) ([]string, error)
	SortedSetCard(key string) (int64, error)
	IsSortedSetMember(key, member string) (bool, error)

	// Counters (globally unique, monotonic per name)
	Incr(name string) (int64, error)
	CounterValue(name string) (int64, error)

	// Lifecycle
	Close() error
}
