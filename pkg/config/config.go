package config

import (
	"errors"
	"fmt"

	"github.com/jessevdk/go-flags"
)

var ErrInvalidConfig = errors.New("invalid config")

// Limits are the hard ceilings a hash table enforces on its buckets.
type Limits struct {
	// Pairs a bucket may hold before it is split (MAX_BUCKET_SIZE).
	BucketSize int64 `long:"bucket-size" env:"EHT_MAX_BUCKET_SIZE" default:"50" description:"key/value pairs per hash bucket before it splits"`
	// Ceiling on a bucket's local depth (MAX_BUCKET_DEPTH).
	MaxDepth int64 `long:"bucket-depth" env:"EHT_MAX_BUCKET_DEPTH" default:"50" description:"maximum local depth of a hash bucket"`
}

// Config is the storage engine configuration shared by the hash tables and the pager.
// Every field can be overridden from the environment.
type Config struct {
	Limits

	PagesInBuffer int64 `long:"pages-in-buffer" env:"EHT_PAGES_IN_BUFFER" default:"32" description:"number of page frames held by the pager"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Limits: Limits{
			BucketSize: DefaultBucketSize,
			MaxDepth:   DefaultBucketDepth,
		},
		PagesInBuffer: MaxPagesInBuffer,
	}
}

// Load reads the configuration from the environment, falling back to defaults.
func Load() (Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.IgnoreUnknown)
	if _, err := parser.ParseArgs([]string{}); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (cfg Config) Validate() error {
	if err := cfg.Limits.Validate(); err != nil {
		return err
	}
	if cfg.PagesInBuffer < 1 {
		return fmt.Errorf("%w: pages in buffer must be positive, got %d", ErrInvalidConfig, cfg.PagesInBuffer)
	}
	return nil
}

// Validate checks the limits are usable.
func (limits Limits) Validate() error {
	if limits.BucketSize < 1 {
		return fmt.Errorf("%w: bucket size must be positive, got %d", ErrInvalidConfig, limits.BucketSize)
	}
	if limits.MaxDepth < 1 || limits.MaxDepth > MaxHashBits {
		return fmt.Errorf("%w: bucket depth must be in [1, %d], got %d", ErrInvalidConfig, MaxHashBits, limits.MaxDepth)
	}
	return nil
}
