package hash

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/hashicorp/go-multierror"
)

// ErrCorrupted is wrapped by every invariant violation Verify reports.
var ErrCorrupted = errors.New("hash table corrupted")

// Verify checks every structural invariant of the table and returns all violations found.
func (table *Table[K, V]) Verify() error {
	table.mtx.Lock()
	defer table.mtx.Unlock()
	return table.verify()
}

func (table *Table[K, V]) verify() error {
	var result *multierror.Error
	fail := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf("%w: %s", ErrCorrupted, fmt.Sprintf(format, args...)))
	}

	if uint64(len(table.dir)) != uint64(1)<<table.globalDepth {
		fail("directory has %d slots at global depth %d", len(table.dir), table.globalDepth)
		return result.ErrorOrNil()
	}

	// Every slot must route to the bucket whose id matches the slot's low bits.
	reachable := bitset.New(uint(len(table.buckets)))
	for slot, index := range table.dir {
		if index == noBucket {
			fail("slot %d has no bucket", slot)
			continue
		}
		bucket := table.buckets[index]
		if uint64(slot)&lowBits(bucket.localDepth) != bucket.id {
			fail("slot %d routes to bucket %d at depth %d", slot, bucket.id, bucket.localDepth)
		}
		reachable.Set(uint(index))
	}

	// Every reachable bucket must own exactly its slot set and hold only its keys.
	claimed := bitset.New(uint(len(table.dir)))
	pairs := int64(0)
	for i, bucket := range table.buckets {
		if !reachable.Test(uint(i)) {
			continue
		}
		if bucket.localDepth > table.globalDepth || bucket.localDepth > table.limits.MaxDepth {
			fail("bucket %d has depth %d (global %d, ceiling %d)",
				bucket.id, bucket.localDepth, table.globalDepth, table.limits.MaxDepth)
			continue
		}
		for slot := bucket.id; slot < uint64(len(table.dir)); slot += bucket.slotStep() {
			if table.dir[slot] != int32(i) {
				fail("bucket %d is missing from slot %d", bucket.id, slot)
			}
			if claimed.Test(uint(slot)) {
				fail("slot %d is claimed by more than one bucket", slot)
			}
			claimed.Set(uint(slot))
		}
		for k := range bucket.items {
			if !bucket.owns(table.hasher(k)) {
				fail("key %v is stored in bucket %d it does not hash to", k, bucket.id)
			}
		}
		if bucket.size() > table.limits.BucketSize && !bucket.overflowed {
			fail("bucket %d holds %d pairs, limit %d", bucket.id, bucket.size(), table.limits.BucketSize)
		}
		pairs += bucket.size()
	}
	if claimed.Count() != uint(len(table.dir)) {
		fail("%d of %d slots are claimed by a bucket", claimed.Count(), len(table.dir))
	}
	if pairs != table.numPairs {
		fail("pair count is %d, buckets hold %d", table.numPairs, pairs)
	}
	if int64(reachable.Count()) != table.numBuckets {
		fail("bucket count is %d, directory reaches %d", table.numBuckets, reachable.Count())
	}
	return result.ErrorOrNil()
}
