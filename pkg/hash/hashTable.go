// Package hash implements an in-memory extendible hash table.
package hash

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"ehtdb/pkg/config"
	"ehtdb/pkg/entry"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("hash")

var (
	// ErrIndexOutOfBounds is returned when a key routes to a directory slot with no bucket.
	ErrIndexOutOfBounds = errors.New("directory slot has no bucket")
	// ErrKeyNotFound is returned by lookups and deletes of absent keys.
	ErrKeyNotFound = errors.New("key not found")
	// ErrBucketNotFound is returned when no installed bucket has the requested id.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrKeyExists is returned by InsertIfAbsent for a key already in the table.
	ErrKeyExists = errors.New("key already in table")
)

// A Table is an in-memory extendible hash table mapping keys to values.
//
// The directory holds arena indices rather than bucket pointers: a bucket with
// local depth ld is installed at the 1<<(globalDepth-ld) slots whose low ld
// bits equal its id. One mutex guards every operation, reads included.
type Table[K comparable, V any] struct {
	globalDepth int64               // The **global** depth of the Hash Table
	dir         []int32             // Directory; each slot holds an index into buckets
	buckets     []*hashBucket[K, V] // Arena of every bucket ever created
	numBuckets  int64               // Number of distinct buckets reachable from dir
	numPairs    int64               // Number of key/value pairs across all buckets
	limits      config.Limits
	hasher      Hasher[K]
	mtx         sync.Mutex
}

// NewTable returns a table with global depth 0 and a single root bucket.
// limits.BucketSize is the capacity hint; non-positive limits fall back to the defaults.
func NewTable[K comparable, V any](hasher Hasher[K], limits config.Limits) *Table[K, V] {
	if limits.BucketSize <= 0 {
		limits.BucketSize = config.DefaultBucketSize
	}
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = config.DefaultBucketDepth
	}
	if limits.MaxDepth > config.MaxHashBits {
		limits.MaxDepth = config.MaxHashBits
	}
	return &Table[K, V]{
		dir:        []int32{0},
		buckets:    []*hashBucket[K, V]{newHashBucket[K, V](0, 0)},
		numBuckets: 1,
		limits:     limits,
		hasher:     hasher,
	}
}

// GetGlobalDepth returns the number of hash bits used to index the directory.
func (table *Table[K, V]) GetGlobalDepth() int64 {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	return table.globalDepth
}

// GetLocalDepth returns the local depth of the bucket with the given id.
func (table *Table[K, V]) GetLocalDepth(bucketID uint64) (int64, error) {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	bucket, err := table.bucketByID(bucketID)
	if err != nil {
		return 0, err
	}
	return bucket.localDepth, nil
}

// IsOverflowed reports whether the bucket with the given id was pinned at the depth ceiling.
func (table *Table[K, V]) IsOverflowed(bucketID uint64) (bool, error) {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	bucket, err := table.bucketByID(bucketID)
	if err != nil {
		return false, err
	}
	return bucket.overflowed, nil
}

// GetNumBuckets returns the number of distinct buckets in the directory.
func (table *Table[K, V]) GetNumBuckets() int64 {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	return table.numBuckets
}

// GetNumPairs returns the number of key/value pairs stored in the table.
func (table *Table[K, V]) GetNumPairs() int64 {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	return table.numPairs
}

// GetLimits returns the bucket limits the table was built with.
func (table *Table[K, V]) GetLimits() config.Limits {
	return table.limits
}

// Find returns the value associated with key.
func (table *Table[K, V]) Find(key K) (V, error) {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	var zero V
	bucket, err := table.bucketFor(table.hasher(key))
	if err != nil {
		return zero, err
	}
	value, found := bucket.find(key)
	if !found {
		return zero, ErrKeyNotFound
	}
	return value, nil
}

// Insert stores a key/value pair, overwriting the value if the key exists.
//
// An insert that pushes a bucket past its size limit splits it, growing the
// directory if needed. If the bucket's keys cannot be told apart below the
// depth ceiling, the bucket is marked overflowed and keeps the pair anyway.
func (table *Table[K, V]) Insert(key K, value V) error {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	table.insert(key, value, true)
	return nil
}

// InsertIfAbsent inserts a new key, or returns ErrKeyExists and leaves the
// stored value alone. The check and the insert happen under one lock.
func (table *Table[K, V]) InsertIfAbsent(key K, value V) error {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	if !table.insert(key, value, false) {
		return fmt.Errorf("%w: %v", ErrKeyExists, key)
	}
	return nil
}

// insert stores the pair, splitting the bucket if it grows too large.
// An existing key is overwritten only when overwrite is set; insert reports
// whether the pair was stored. The caller holds the table lock.
func (table *Table[K, V]) insert(key K, value V, overwrite bool) bool {
	hash := table.hasher(key)
	slot := table.indexOf(hash)
	if table.dir[slot] == noBucket {
		// Home the slot with a bucket that owns exactly this slot.
		table.dir[slot] = table.addBucket(newHashBucket[K, V](slot, table.globalDepth))
		table.numBuckets++
	}
	index := table.dir[slot]
	bucket := table.buckets[index]
	if _, exists := bucket.find(key); exists {
		if overwrite {
			bucket.update(key, value)
		}
		return overwrite
	}
	bucket.items[key] = value
	table.numPairs++
	if bucket.size() > table.limits.BucketSize && !bucket.overflowed {
		table.split(index)
	}
	return true
}

// Update overwrites the value of an existing key, or returns ErrKeyNotFound.
func (table *Table[K, V]) Update(key K, value V) error {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	bucket, err := table.bucketFor(table.hasher(key))
	if err != nil {
		return err
	}
	if !bucket.update(key, value) {
		return ErrKeyNotFound
	}
	return nil
}

// Delete removes key from the table. Buckets are never merged and the directory never shrinks.
func (table *Table[K, V]) Delete(key K) error {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	bucket, err := table.bucketFor(table.hasher(key))
	if err != nil {
		return err
	}
	if !bucket.delete(key) {
		return ErrKeyNotFound
	}
	table.numPairs--
	return nil
}

// Select returns a snapshot of every pair in the table.
func (table *Table[K, V]) Select() []entry.Entry[K, V] {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	ret := make([]entry.Entry[K, V], 0, table.numPairs)
	table.eachBucket(func(_ int32, bucket *hashBucket[K, V]) {
		ret = bucket.appendEntries(ret)
	})
	return ret
}

// Print writes a string representation of this entire table (including its buckets) to the specified writer.
func (table *Table[K, V]) Print(w io.Writer) {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	io.WriteString(w, "====\n")
	fmt.Fprintf(w, "global depth: %d, buckets: %d, pairs: %d\n", table.globalDepth, table.numBuckets, table.numPairs)
	for slot, index := range table.dir {
		if index == noBucket {
			fmt.Fprintf(w, "slot %d -> none\n", slot)
			continue
		}
		fmt.Fprintf(w, "slot %d -> bucket %d\n", slot, table.buckets[index].id)
	}
	table.eachBucket(func(_ int32, bucket *hashBucket[K, V]) {
		io.WriteString(w, "====\n")
		bucket.print(w)
	})
	io.WriteString(w, "====\n")
}

// PrintBucket writes out a single bucket.
func (table *Table[K, V]) PrintBucket(bucketID uint64, w io.Writer) error {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	bucket, err := table.bucketByID(bucketID)
	if err != nil {
		return err
	}
	bucket.print(w)
	return nil
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////// Table Helper Functions ///////////////////////////
/////////////////////////////////////////////////////////////////////////////

// indexOf returns the directory slot a hash routes to.
func (table *Table[K, V]) indexOf(hash uint64) uint64 {
	return hash & lowBits(table.globalDepth)
}

// bucketFor returns the bucket a hash routes to.
func (table *Table[K, V]) bucketFor(hash uint64) (*hashBucket[K, V], error) {
	slot := table.indexOf(hash)
	index := table.dir[slot]
	if index == noBucket {
		log.Errorf("slot %d at global depth %d has no bucket", slot, table.globalDepth)
		return nil, fmt.Errorf("%w: slot %d", ErrIndexOutOfBounds, slot)
	}
	return table.buckets[index], nil
}

// bucketByID returns the installed bucket with the given id. Every bucket
// occupies the slot equal to its id, so one directory probe is enough.
func (table *Table[K, V]) bucketByID(bucketID uint64) (*hashBucket[K, V], error) {
	if bucketID >= uint64(len(table.dir)) || table.dir[bucketID] == noBucket {
		return nil, fmt.Errorf("%w: %d", ErrBucketNotFound, bucketID)
	}
	bucket := table.buckets[table.dir[bucketID]]
	if bucket.id != bucketID {
		return nil, fmt.Errorf("%w: %d", ErrBucketNotFound, bucketID)
	}
	return bucket, nil
}

// addBucket places a bucket in the arena and returns its index.
func (table *Table[K, V]) addBucket(bucket *hashBucket[K, V]) int32 {
	table.buckets = append(table.buckets, bucket)
	return int32(len(table.buckets) - 1)
}

// eachBucket calls f once for every bucket reachable from the directory, in slot order.
func (table *Table[K, V]) eachBucket(f func(index int32, bucket *hashBucket[K, V])) {
	for slot, index := range table.dir {
		if index == noBucket {
			continue
		}
		bucket := table.buckets[index]
		// A bucket is first reached at the slot equal to its id.
		if uint64(slot) == bucket.id {
			f(index, bucket)
		}
	}
}
