package hash

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"testing"

	"ehtdb/pkg/config"

	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =====================================================================
// HELPERS
// =====================================================================

// identityHasher routes keys by their own low bits, which makes splits predictable.
func identityHasher(key int64) uint64 {
	return uint64(key)
}

// constantHasher sends every key to the same hash.
func constantHasher(int64) uint64 {
	return 0
}

func setupTable(t *testing.T, hasher Hasher[int64], bucketSize, maxDepth int64) *Table[int64, int64] {
	t.Parallel()
	return NewTable[int64, int64](hasher, config.Limits{BucketSize: bucketSize, MaxDepth: maxDepth})
}

// requireConsistent fails the test if any table invariant is broken.
func requireConsistent(t *testing.T, table *Table[int64, int64]) {
	t.Helper()
	require.NoError(t, table.Verify())
}

// =====================================================================
// TESTS
// =====================================================================

func TestMain(m *testing.M) {
	// Keep split and eviction chatter out of the test output.
	logging.SetLevel(logging.WARNING, "")
	os.Exit(m.Run())
}

func TestNewTable(t *testing.T) {
	table := setupTable(t, XxHasher[int64](), 0, 0)
	assert.Equal(t, int64(0), table.GetGlobalDepth())
	assert.Equal(t, int64(1), table.GetNumBuckets())
	assert.Equal(t, int64(0), table.GetNumPairs())
	assert.Equal(t, config.Limits{BucketSize: config.DefaultBucketSize, MaxDepth: config.DefaultBucketDepth}, table.GetLimits())

	depth, err := table.GetLocalDepth(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
	requireConsistent(t, table)
	assert.Equal(t, logging.WARNING, logging.GetLevel("hash"))
}

func TestHashTable(t *testing.T) {
	t.Run("RoundTrip", testRoundTrip)
	t.Run("IdempotentUpdate", testIdempotentUpdate)
	t.Run("InsertThenDelete", testInsertThenDelete)
	t.Run("DeleteMissing", testDeleteMissing)
	t.Run("Update", testUpdate)
	t.Run("InsertIfAbsent", testInsertIfAbsent)
	t.Run("SixtyKeys", testSixtyKeys)
	t.Run("Select", testSelect)
	t.Run("StringKeys", testStringKeys)
}

func testRoundTrip(t *testing.T) {
	table := setupTable(t, XxHasher[int64](), 50, 50)
	for i := int64(0); i < 500; i++ {
		require.NoError(t, table.Insert(i, i*7))
	}
	for i := int64(0); i < 500; i++ {
		value, err := table.Find(i)
		require.NoError(t, err)
		assert.Equal(t, i*7, value)
	}
	_, err := table.Find(500)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	requireConsistent(t, table)
}

func testIdempotentUpdate(t *testing.T) {
	table := setupTable(t, XxHasher[int64](), 50, 50)
	require.NoError(t, table.Insert(42, 1))
	pairs := table.GetNumPairs()
	require.NoError(t, table.Insert(42, 2))
	assert.Equal(t, pairs, table.GetNumPairs())

	value, err := table.Find(42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)
}

func testInsertThenDelete(t *testing.T) {
	table := setupTable(t, XxHasher[int64](), 50, 50)
	before := table.GetNumPairs()
	require.NoError(t, table.Insert(5, 50))
	require.NoError(t, table.Delete(5))

	_, err := table.Find(5)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, before, table.GetNumPairs())
	requireConsistent(t, table)
}

func testDeleteMissing(t *testing.T) {
	table := setupTable(t, XxHasher[int64](), 50, 50)
	require.NoError(t, table.Insert(1, 1))
	assert.ErrorIs(t, table.Delete(2), ErrKeyNotFound)
	assert.Equal(t, int64(1), table.GetNumPairs())
}

func testInsertIfAbsent(t *testing.T) {
	table := setupTable(t, identityHasher, 2, 10)
	for i := int64(0); i < 8; i++ {
		require.NoError(t, table.InsertIfAbsent(i, i))
	}
	assert.ErrorIs(t, table.InsertIfAbsent(3, 99), ErrKeyExists)
	assert.Equal(t, int64(8), table.GetNumPairs())

	value, err := table.Find(3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), value)
	requireConsistent(t, table)
}

func testUpdate(t *testing.T) {
	table := setupTable(t, XxHasher[int64](), 50, 50)
	assert.ErrorIs(t, table.Update(3, 30), ErrKeyNotFound)
	require.NoError(t, table.Insert(3, 30))
	require.NoError(t, table.Update(3, 31))
	value, err := table.Find(3)
	require.NoError(t, err)
	assert.Equal(t, int64(31), value)
	assert.Equal(t, int64(1), table.GetNumPairs())
}

func testSixtyKeys(t *testing.T) {
	table := setupTable(t, XxHasher[int64](), 50, 50)
	for i := int64(1); i <= 60; i++ {
		require.NoError(t, table.Insert(i, -i))
	}
	assert.GreaterOrEqual(t, table.GetGlobalDepth(), int64(1))
	assert.GreaterOrEqual(t, table.GetNumBuckets(), int64(2))
	for i := int64(1); i <= 60; i++ {
		value, err := table.Find(i)
		require.NoError(t, err)
		assert.Equal(t, -i, value)
	}
	requireConsistent(t, table)
}

func testSelect(t *testing.T) {
	table := setupTable(t, MurmurHasher[int64](), 4, 50)
	want := make(map[int64]int64)
	for i := int64(0); i < 100; i++ {
		want[i] = i * i
		require.NoError(t, table.Insert(i, i*i))
	}
	got := make(map[int64]int64)
	for _, e := range table.Select() {
		got[e.Key] = e.Value
	}
	assert.Equal(t, want, got)
}

func testStringKeys(t *testing.T) {
	t.Parallel()
	table := NewTable[string, int](XxStringHasher[string](), config.Limits{BucketSize: 3, MaxDepth: 20})
	for i := 0; i < 200; i++ {
		require.NoError(t, table.Insert(fmt.Sprintf("page-%d", i), i))
	}
	for i := 0; i < 200; i++ {
		value, err := table.Find(fmt.Sprintf("page-%d", i))
		require.NoError(t, err)
		assert.Equal(t, i, value)
	}
	require.NoError(t, table.Verify())
}

func TestLocalDepth(t *testing.T) {
	table := setupTable(t, identityHasher, 2, 10)
	// 0 and 2 agree on bit 0 and 1 does not: one split to depth 1.
	for _, k := range []int64{0, 1, 2} {
		require.NoError(t, table.Insert(k, k))
	}
	assert.Equal(t, int64(1), table.GetGlobalDepth())

	for _, id := range []uint64{0, 1} {
		depth, err := table.GetLocalDepth(id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), depth)
	}
	_, err := table.GetLocalDepth(2)
	assert.ErrorIs(t, err, ErrBucketNotFound)
	_, err = table.IsOverflowed(7)
	assert.ErrorIs(t, err, ErrBucketNotFound)
}

func TestPrint(t *testing.T) {
	table := setupTable(t, identityHasher, 2, 10)
	for _, k := range []int64{0, 1, 2} {
		require.NoError(t, table.Insert(k, k*10))
	}
	w := new(strings.Builder)
	table.Print(w)
	out := w.String()
	assert.Contains(t, out, "global depth: 1, buckets: 2, pairs: 3")
	assert.Contains(t, out, "slot 1 -> bucket 1")
	assert.Contains(t, out, "(1, 10)")

	w.Reset()
	require.NoError(t, table.PrintBucket(1, w))
	assert.Contains(t, w.String(), "bucket id: 1, depth: 1, pairs: 1")
	assert.ErrorIs(t, table.PrintBucket(3, w), ErrBucketNotFound)
}

// Inserts random keys and deletes a share of them, checking every invariant after each operation.
func TestInvariantsUnderRandomWorkload(t *testing.T) {
	hashers := map[string]Hasher[int64]{
		"XxHash":   XxHasher[int64](),
		"Murmur":   MurmurHasher[int64](),
		"Identity": identityHasher,
	}
	for name, hasher := range hashers {
		hasher := hasher
		t.Run(name, func(t *testing.T) {
			table := setupTable(t, hasher, 4, 30)
			rng := rand.New(rand.NewSource(1))
			answerKey := make(map[int64]int64)
			keys := make([]int64, 0)
			for i := 0; i < 2000; i++ {
				if len(keys) > 0 && rng.Intn(4) == 0 {
					j := rng.Intn(len(keys))
					require.NoError(t, table.Delete(keys[j]))
					delete(answerKey, keys[j])
					keys[j] = keys[len(keys)-1]
					keys = keys[:len(keys)-1]
				} else {
					key := rng.Int63n(1 << 20)
					if _, ok := answerKey[key]; !ok {
						keys = append(keys, key)
					}
					answerKey[key] = int64(i)
					require.NoError(t, table.Insert(key, int64(i)))
				}
				requireConsistent(t, table)
			}
			assert.Equal(t, int64(len(answerKey)), table.GetNumPairs())
			for k, v := range answerKey {
				value, err := table.Find(k)
				require.NoError(t, err)
				assert.Equal(t, v, value)
			}
		})
	}
}
