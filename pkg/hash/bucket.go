package hash

import (
	"fmt"
	"io"

	"ehtdb/pkg/entry"
)

// noBucket marks a directory slot that routes to no bucket.
const noBucket int32 = -1

// hashBucket owns every key whose hash agrees with id on the low localDepth bits.
type hashBucket[K comparable, V any] struct {
	id         uint64  // The low-order bit pattern this bucket answers to
	localDepth int64   // The **local** depth of the bucket
	items      map[K]V // The key/value pairs stored in the bucket
	overflowed bool    // Set when the bucket could not be split below the depth ceiling
}

// newHashBucket constructs a new, empty bucket with the given id and local depth.
func newHashBucket[K comparable, V any](id uint64, depth int64) *hashBucket[K, V] {
	return &hashBucket[K, V]{id: id, localDepth: depth, items: make(map[K]V)}
}

// find returns the value stored under key.
func (bucket *hashBucket[K, V]) find(key K) (V, bool) {
	value, ok := bucket.items[key]
	return value, ok
}

// update overwrites the value of an existing key.
// Returns false if the key is not in the bucket.
func (bucket *hashBucket[K, V]) update(key K, value V) bool {
	if _, ok := bucket.items[key]; !ok {
		return false
	}
	bucket.items[key] = value
	return true
}

// delete removes key, reporting whether it was present.
// NOTE: does not coalesce (ie doesn't merge buckets when they become empty)
func (bucket *hashBucket[K, V]) delete(key K) bool {
	if _, ok := bucket.items[key]; !ok {
		return false
	}
	delete(bucket.items, key)
	return true
}

// size returns the number of pairs in the bucket.
func (bucket *hashBucket[K, V]) size() int64 {
	return int64(len(bucket.items))
}

// slotStep is the distance between two directory slots routing to this bucket.
func (bucket *hashBucket[K, V]) slotStep() uint64 {
	return uint64(1) << bucket.localDepth
}

// owns reports whether a hash belongs in this bucket.
func (bucket *hashBucket[K, V]) owns(hash uint64) bool {
	return hash&lowBits(bucket.localDepth) == bucket.id
}

// appendEntries adds every pair in the bucket to ret.
func (bucket *hashBucket[K, V]) appendEntries(ret []entry.Entry[K, V]) []entry.Entry[K, V] {
	for k, v := range bucket.items {
		ret = append(ret, entry.New(k, v))
	}
	return ret
}

// print writes a string-representation of this bucket and its entries to the specified writer.
func (bucket *hashBucket[K, V]) print(w io.Writer) {
	fmt.Fprintf(w, "bucket id: %d, depth: %d, pairs: %d", bucket.id, bucket.localDepth, len(bucket.items))
	if bucket.overflowed {
		io.WriteString(w, " (overflowed)")
	}
	io.WriteString(w, "\nentries: ")
	for k, v := range bucket.items {
		entry.New(k, v).Print(w)
	}
	io.WriteString(w, "\n")
}

// lowBits returns a mask selecting the low depth bits of a hash.
func lowBits(depth int64) uint64 {
	return (uint64(1) << depth) - 1
}
