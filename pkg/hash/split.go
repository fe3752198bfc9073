package hash

// sibling is a bucket created by a split: its id and local depth.
type sibling struct {
	id    uint64
	depth int64
}

// split relieves the overflowing bucket at arena index `index` by moving the
// keys that differ in the next hash bit into a new child bucket.
//
// If every key agrees on that bit the split descends another level, leaving an
// empty sibling behind for the half that received no keys, so every slot the
// bucket used to own is still homed afterwards. Nothing is modified until a
// separating bit is found; if none exists below the depth ceiling the bucket
// is only flagged as overflowed.
func (table *Table[K, V]) split(index int32) {
	bucket := table.buckets[index]
	hashes := make(map[K]uint64, len(bucket.items))
	for k := range bucket.items {
		hashes[k] = table.hasher(k)
	}

	depth := bucket.localDepth
	prefix := bucket.id
	var empties []sibling
	for {
		if depth >= table.limits.MaxDepth {
			bucket.overflowed = true
			log.Warningf("bucket %d (depth %d) holds %d keys indistinguishable below depth %d, marked overflowed",
				bucket.id, bucket.localDepth, len(bucket.items), table.limits.MaxDepth)
			return
		}
		depth++
		bit := uint64(1) << (depth - 1)
		high := 0
		for _, h := range hashes {
			if h&bit != 0 {
				high++
			}
		}
		if high != 0 && high != len(hashes) {
			break
		}
		if high == 0 {
			empties = append(empties, sibling{id: prefix | bit, depth: depth})
		} else {
			empties = append(empties, sibling{id: prefix, depth: depth})
			prefix |= bit
		}
	}

	// The bucket keeps the keys with the separating bit clear; the child takes the rest.
	bit := uint64(1) << (depth - 1)
	child := newHashBucket[K, V](prefix|bit, depth)
	for k, h := range hashes {
		if h&bit != 0 {
			child.items[k] = bucket.items[k]
			delete(bucket.items, k)
		}
	}
	oldID := bucket.id
	bucket.id = prefix
	bucket.localDepth = depth

	created := []int32{table.addBucket(child)}
	for _, s := range empties {
		created = append(created, table.addBucket(newHashBucket[K, V](s.id, s.depth)))
	}
	table.numBuckets += int64(len(created))
	log.Debugf("split bucket %d into %d and %d at depth %d (%d empty siblings)",
		oldID, bucket.id, child.id, depth, len(empties))

	if depth > table.globalDepth {
		table.grow(depth)
	}
	table.install(index)
	for _, i := range created {
		table.install(i)
	}
}

// grow extends the directory to 1<<depth slots. Every new slot copies the
// slot sharing its low globalDepth bits, which keeps each existing bucket on
// exactly the slots matching its id.
func (table *Table[K, V]) grow(depth int64) {
	oldLen := uint64(len(table.dir))
	newLen := uint64(1) << depth
	dir := make([]int32, newLen)
	copy(dir, table.dir)
	for slot := oldLen; slot < newLen; slot++ {
		dir[slot] = dir[slot&(oldLen-1)]
	}
	log.Debugf("directory grew from depth %d to %d (factor %d)", table.globalDepth, depth, newLen/oldLen)
	table.dir = dir
	table.globalDepth = depth
}

// install points every slot owned by the bucket at arena index `index` to it:
// the slots {id + k * 2^localDepth}.
func (table *Table[K, V]) install(index int32) {
	bucket := table.buckets[index]
	step := bucket.slotStep()
	for slot := bucket.id; slot < uint64(len(table.dir)); slot += step {
		table.dir[slot] = index
	}
}
