package store

import (
	"encoding/binary"
	"sync"

	cuckoo "github.com/linvon/cuckoo-filter"
)

const (
	// Cuckoo filter configuration
	// capacity = bucketSize × numBuckets = 4 × 250000 = 1M entries
	cuckooBucketSize      = 4
	cuckooFingerprintSize = 32     // 32-bit fingerprint, negligible FP rate
	cuckooNumBuckets      = 250000 // 1M capacity
)

// idBufPool reduces allocations for id-to-bytes conversion.
var idBufPool = sync.Pool{
	New: func() interface{} { return make([]byte, 8) },
}

// ExistsFilter answers "does this id possibly exist" without touching Pebble.
//
// Design:
//   - Every id allocated by this process is added on create
//   - Ids at or below the construction floor predate this process, so the
//     filter never saw them; they always report as possibly existing
//   - Filter MISS above the floor = id was never allocated → fail fast
//   - Filter HIT = maybe exists → slow path (record lookup)
//
// Thread-safe for concurrent access.
type ExistsFilter struct {
	mu     sync.RWMutex
	floor  int64
	filter *cuckoo.Filter
}

// NewExistsFilter creates a new Cuckoo-based existence filter. The floor is
// the highest id allocated before this process started, typically the
// persisted counter value at startup.
func NewExistsFilter(floor int64) *ExistsFilter {
	cf := cuckoo.NewFilter(cuckooBucketSize, cuckooFingerprintSize,
		cuckooNumBuckets, cuckoo.TableTypePacked)
	return &ExistsFilter{floor: floor, filter: cf}
}

// MightExist returns true if the id MIGHT exist (requires record lookup).
// Returns false if the id definitely does NOT exist. Negative answers are
// only authoritative for ids allocated during this process's lifetime.
func (f *ExistsFilter) MightExist(id int64) bool {
	if id <= f.floor {
		return true
	}
	f.mu.RLock()
	buf := idBufPool.Get().([]byte)
	binary.LittleEndian.PutUint64(buf, uint64(id))
	result := f.filter.Contain(buf)
	idBufPool.Put(buf)
	f.mu.RUnlock()
	return result
}

// Add inserts an id into the filter.
func (f *ExistsFilter) Add(id int64) {
	f.mu.Lock()
	buf := idBufPool.Get().([]byte)
	binary.LittleEndian.PutUint64(buf, uint64(id))
	f.filter.Add(buf)
	idBufPool.Put(buf)
	f.mu.Unlock()
}
