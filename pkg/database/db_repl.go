package database

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ehtdb/pkg/entry"
	"ehtdb/pkg/hash"
	"ehtdb/pkg/repl"
)

// ErrKeyExists is returned by the insert command for a key already in the table.
var ErrKeyExists = hash.ErrKeyExists

// DatabaseRepl creates a REPL over the tables of db.
func DatabaseRepl(db *Database) *repl.REPL {
	r := repl.NewRepl()
	add := func(trigger string, handler func(*Database, string) (string, error), help string) {
		err := r.AddCommand(trigger, func(payload string, replConfig *repl.REPLConfig) (string, error) {
			log.Debugf("client %s: %s", replConfig.GetAddr(), payload)
			return handler(db, payload)
		}, help)
		if err != nil {
			panic(err)
		}
	}
	add("create", HandleCreateTable, "Create a table. usage: create hash table <table> [xxhash|murmur3]")
	add("find", HandleFind, "Find an element. usage: find <key> from <table>")
	add("insert", HandleInsert, "Insert an element. usage: insert <key> <value> into <table>")
	add("update", HandleUpdate, "Update an element. usage: update <table> <key> <value>")
	add("delete", HandleDelete, "Delete an element. usage: delete <key> from <table>")
	add("select", HandleSelect, "Select elements from a table. usage: select from <table>")
	add("pretty", HandlePretty, "Print out the internal data representation. usage: pretty [bucket] from <table>")
	add("depth", HandleDepth, "Print the global depth of a table. usage: depth from <table>")
	add("local", HandleLocal, "Print the local depth of a bucket. usage: local <bucket> from <table>")
	add("stats", HandleStats, "Print the size of a table. usage: stats from <table>")
	add("verify", HandleVerify, "Check the invariants of one or all tables. usage: verify [table]")
	return r
}

// Handle create table.
func HandleCreateTable(d *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	// Usage: create hash table <table> [hasher]
	if (len(fields) != 4 && len(fields) != 5) || fields[1] != string(HashIndexType) || fields[2] != "table" {
		return "", errors.New("usage: create hash table <table> [xxhash|murmur3]")
	}
	hasherName := ""
	if len(fields) == 5 {
		hasherName = fields[4]
	}
	if _, err := d.CreateTable(fields[3], hasherName); err != nil {
		return "", fmt.Errorf("create error: %w", err)
	}
	return fmt.Sprintf("%s table %s created.", fields[1], fields[3]), nil
}

// Handle find.
func HandleFind(d *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	// Usage: find <key> from <table>
	if len(fields) != 4 || fields[2] != "from" {
		return "", errors.New("usage: find <key> from <table>")
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("find error: %w", err)
	}
	table, err := d.GetTable(fields[3])
	if err != nil {
		return "", fmt.Errorf("find error: %w", err)
	}
	value, err := table.Find(key)
	if err != nil {
		return "", fmt.Errorf("find error: %w", err)
	}
	return fmt.Sprintf("found entry: (%d, %d)", key, value), nil
}

// Handle insert. Unlike the table itself, the command refuses to overwrite.
func HandleInsert(d *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	// Usage: insert <key> <value> into <table>
	if len(fields) != 5 || fields[3] != "into" {
		return "", errors.New("usage: insert <key> <value> into <table>")
	}
	key, value, err := parsePair(fields[1], fields[2])
	if err != nil {
		return "", fmt.Errorf("insert error: %w", err)
	}
	table, err := d.GetTable(fields[4])
	if err != nil {
		return "", fmt.Errorf("insert error: %w", err)
	}
	if err := table.InsertIfAbsent(key, value); err != nil {
		return "", fmt.Errorf("insert error: %w", err)
	}
	return "", nil
}

// Handle update.
func HandleUpdate(d *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	// Usage: update <table> <key> <value>
	if len(fields) != 4 {
		return "", errors.New("usage: update <table> <key> <value>")
	}
	key, value, err := parsePair(fields[2], fields[3])
	if err != nil {
		return "", fmt.Errorf("update error: %w", err)
	}
	table, err := d.GetTable(fields[1])
	if err != nil {
		return "", fmt.Errorf("update error: %w", err)
	}
	if err := table.Update(key, value); err != nil {
		return "", fmt.Errorf("update error: %w", err)
	}
	return "", nil
}

// Handle delete.
func HandleDelete(d *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	// Usage: delete <key> from <table>
	if len(fields) != 4 || fields[2] != "from" {
		return "", errors.New("usage: delete <key> from <table>")
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("delete error: %w", err)
	}
	table, err := d.GetTable(fields[3])
	if err != nil {
		return "", fmt.Errorf("delete error: %w", err)
	}
	if err := table.Delete(key); err != nil {
		return "", fmt.Errorf("delete error: %w", err)
	}
	return "", nil
}

// Handle select.
func HandleSelect(d *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	// Usage: select from <table>
	if len(fields) != 3 || fields[1] != "from" {
		return "", errors.New("usage: select from <table>")
	}
	table, err := d.GetTable(fields[2])
	if err != nil {
		return "", fmt.Errorf("select error: %w", err)
	}
	w := new(strings.Builder)
	printResults(table.Select(), w)
	return w.String(), nil
}

// Handle pretty printing.
func HandlePretty(d *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	w := new(strings.Builder)
	// Usage: pretty [bucket] from <table>
	switch {
	case len(fields) == 3 && fields[1] == "from":
		table, err := d.GetTable(fields[2])
		if err != nil {
			return "", fmt.Errorf("pretty error: %w", err)
		}
		table.Print(w)
	case len(fields) == 4 && fields[2] == "from":
		bucketID, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return "", fmt.Errorf("pretty error: %w", err)
		}
		table, err := d.GetTable(fields[3])
		if err != nil {
			return "", fmt.Errorf("pretty error: %w", err)
		}
		if err := table.PrintBucket(bucketID, w); err != nil {
			return "", fmt.Errorf("pretty error: %w", err)
		}
	default:
		return "", errors.New("usage: pretty [bucket] from <table>")
	}
	return w.String(), nil
}

// Handle global depth.
func HandleDepth(d *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	// Usage: depth from <table>
	if len(fields) != 3 || fields[1] != "from" {
		return "", errors.New("usage: depth from <table>")
	}
	table, err := d.GetTable(fields[2])
	if err != nil {
		return "", fmt.Errorf("depth error: %w", err)
	}
	return fmt.Sprintf("global depth: %d", table.GetGlobalDepth()), nil
}

// Handle local depth.
func HandleLocal(d *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	// Usage: local <bucket> from <table>
	if len(fields) != 4 || fields[2] != "from" {
		return "", errors.New("usage: local <bucket> from <table>")
	}
	bucketID, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("local error: %w", err)
	}
	table, err := d.GetTable(fields[3])
	if err != nil {
		return "", fmt.Errorf("local error: %w", err)
	}
	depth, err := table.GetLocalDepth(bucketID)
	if err != nil {
		return "", fmt.Errorf("local error: %w", err)
	}
	return fmt.Sprintf("local depth of bucket %d: %d", bucketID, depth), nil
}

// Handle stats.
func HandleStats(d *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	// Usage: stats from <table>
	if len(fields) != 3 || fields[1] != "from" {
		return "", errors.New("usage: stats from <table>")
	}
	table, err := d.GetTable(fields[2])
	if err != nil {
		return "", fmt.Errorf("stats error: %w", err)
	}
	return fmt.Sprintf("global depth: %d, buckets: %d, pairs: %d",
		table.GetGlobalDepth(), table.GetNumBuckets(), table.GetNumPairs()), nil
}

// Handle verify.
func HandleVerify(d *Database, payload string) (string, error) {
	fields := strings.Fields(payload)
	// Usage: verify [table]
	if len(fields) > 2 {
		return "", errors.New("usage: verify [table]")
	}
	if err := d.Verify(fields[1:]...); err != nil {
		return "", fmt.Errorf("verify error: %w", err)
	}
	return "ok", nil
}

// parsePair parses a key and a value.
func parsePair(k, v string) (key, value int64, err error) {
	if key, err = strconv.ParseInt(k, 10, 64); err != nil {
		return 0, 0, err
	}
	if value, err = strconv.ParseInt(v, 10, 64); err != nil {
		return 0, 0, err
	}
	return key, value, nil
}

// printResults prints all given entries in a standard format.
func printResults(entries []entry.Entry[int64, int64], w io.Writer) {
	for _, e := range entries {
		fmt.Fprintf(w, "(%v, %v)\n", e.Key, e.Value)
	}
}
