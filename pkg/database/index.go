package database

import (
	"io"

	"ehtdb/pkg/entry"
	"ehtdb/pkg/hash"
)

// IndexType names the kind of index backing a table.
type IndexType string

const (
	HashIndexType IndexType = "hash"
)

// Index is the interface the catalog uses to reach a table.
type Index interface {
	Find(int64) (int64, error)
	Insert(int64, int64) error
	InsertIfAbsent(int64, int64) error
	Update(int64, int64) error
	Delete(int64) error
	Select() []entry.Entry[int64, int64]
	Print(io.Writer)
	PrintBucket(uint64, io.Writer) error
	GetGlobalDepth() int64
	GetLocalDepth(uint64) (int64, error)
	GetNumBuckets() int64
	GetNumPairs() int64
	Verify() error
}

var _ Index = (*hash.Table[int64, int64])(nil)
