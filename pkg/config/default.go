// Global engine config.
package config

// Name of the database.
const DBName = "ehtdb"

// Prompt printed by REPL.
const Prompt = DBName + "> "

// The maximum number of pages that can be in the pager's buffer at once.
const MaxPagesInBuffer = 32

// Name of log file.
const LogFileName = DBName + ".log"

// Default number of key/value pairs a hash bucket holds before it splits.
const DefaultBucketSize = 50

// Default ceiling on a hash bucket's local depth.
const DefaultBucketDepth = 50

// MaxHashBits bounds every depth: keys hash to 64 bits and a directory of
// 1<<64 slots is not addressable.
const MaxHashBits = 63

// Return prompt if requested, else "".
func GetPrompt(flag bool) string {
	if flag {
		return Prompt
	}
	return ""
}
