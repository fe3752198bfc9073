// Package database is an in-memory catalog of named extendible hash tables.
package database

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"ehtdb/pkg/config"
	"ehtdb/pkg/hash"

	"github.com/hashicorp/go-multierror"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("database")

var (
	ErrInvalidTableName = errors.New("table name must be alphanumeric")
	ErrTableExists      = errors.New("table already exists")
	ErrTableNotFound    = errors.New("table not found")
)

var nonWord = regexp.MustCompile(`\W`)

// Database holds the tables created during a session. Nothing is persisted.
type Database struct {
	limits     config.Limits
	hasherName string
	tables     map[string]Index
	mtx        sync.RWMutex
}

// Open returns an empty database whose tables use limits and, unless told
// otherwise, the hasher registered under hasherName.
func Open(limits config.Limits, hasherName string) (*Database, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if _, err := hash.Int64HasherByName(hasherName); err != nil {
		return nil, err
	}
	if hasherName == "" {
		hasherName = hash.XxHashName
	}
	return &Database{
		limits:     limits,
		hasherName: hasherName,
		tables:     make(map[string]Index),
	}, nil
}

// Close verifies and drops every table.
func (db *Database) Close() error {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	err := db.verify(db.names())
	db.tables = make(map[string]Index)
	return err
}

// CreateTable creates an empty table. An empty hasherName selects the database's hasher.
func (db *Database) CreateTable(name string, hasherName string) (Index, error) {
	if name == "" || nonWord.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	if hasherName == "" {
		hasherName = db.hasherName
	}
	hasher, err := hash.Int64HasherByName(hasherName)
	if err != nil {
		return nil, err
	}
	db.mtx.Lock()
	defer db.mtx.Unlock()
	if _, exists := db.tables[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	table := hash.NewTable[int64, int64](hasher, db.limits)
	db.tables[name] = table
	log.Infof("created table %s (hasher %s, bucket size %d, depth ceiling %d)",
		name, hasherName, db.limits.BucketSize, db.limits.MaxDepth)
	return table, nil
}

// GetTable returns the table with the given name.
func (db *Database) GetTable(name string) (Index, error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	table, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return table, nil
}

// GetTables returns a copy of the name to table mapping.
func (db *Database) GetTables() map[string]Index {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	ret := make(map[string]Index, len(db.tables))
	for name, table := range db.tables {
		ret[name] = table
	}
	return ret
}

// GetLimits returns the limits every table is created with.
func (db *Database) GetLimits() config.Limits {
	return db.limits
}

// Verify checks the named tables, or all of them if none are named, and
// returns every violation found.
func (db *Database) Verify(names ...string) error {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	if len(names) == 0 {
		names = db.names()
	}
	return db.verify(names)
}

func (db *Database) verify(names []string) error {
	var result *multierror.Error
	for _, name := range names {
		table, ok := db.tables[name]
		if !ok {
			result = multierror.Append(result, fmt.Errorf("%w: %s", ErrTableNotFound, name))
			continue
		}
		if err := table.Verify(); err != nil {
			log.Errorf("table %s failed verification: %v", name, err)
			result = multierror.Append(result, fmt.Errorf("table %s: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

// names returns the table names in sorted order.
func (db *Database) names() []string {
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
