package hash

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// Hasher maps a key to a uniformly distributed 64-bit hash. It must be deterministic.
type Hasher[K comparable] func(K) uint64

// Integer is the set of key types the integer hashers accept.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Names accepted by Int64HasherByName.
const (
	XxHashName  = "xxhash"
	MurmurName  = "murmur3"
	defaultName = XxHashName
)

// encodeKey serializes an integer key the same way regardless of its width.
func encodeKey(key int64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutVarint(buf, key)
	return buf[:n]
}

// XxHasher returns a Hasher for integer keys built on xxHash.
func XxHasher[K Integer]() Hasher[K] {
	return func(key K) uint64 {
		return xxhash.Sum64(encodeKey(int64(key)))
	}
}

// MurmurHasher returns a Hasher for integer keys built on MurmurHash3.
func MurmurHasher[K Integer]() Hasher[K] {
	return func(key K) uint64 {
		return murmur3.Sum64(encodeKey(int64(key)))
	}
}

// XxStringHasher returns a Hasher for string keys built on xxHash.
func XxStringHasher[K ~string]() Hasher[K] {
	return func(key K) uint64 {
		return xxhash.Sum64([]byte(key))
	}
}

// MurmurStringHasher returns a Hasher for string keys built on MurmurHash3.
func MurmurStringHasher[K ~string]() Hasher[K] {
	return func(key K) uint64 {
		return murmur3.Sum64([]byte(key))
	}
}

// Int64HasherByName returns the int64 hasher registered under name.
// The empty name selects xxHash.
func Int64HasherByName(name string) (Hasher[int64], error) {
	if name == "" {
		name = defaultName
	}
	switch name {
	case XxHashName:
		return XxHasher[int64](), nil
	case MurmurName:
		return MurmurHasher[int64](), nil
	default:
		return nil, fmt.Errorf("unknown hasher %q, want %s or %s", name, XxHashName, MurmurName)
	}
}
