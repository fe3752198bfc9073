package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"ehtdb/pkg/config"
	"ehtdb/pkg/database"
	"ehtdb/pkg/hash"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/op/go-logging"
	"golang.org/x/sync/errgroup"
)

var log = logging.MustGetLogger("stress")

// Upper bound on the delay between two workload lines sent by one worker.
const maxDelay int64 = 10

type Options struct {
	config.LogOptions `group:"Logging Options"`
	config.Limits     `group:"Table Options"`

	Workers     int     `short:"n" long:"workers" default:"8" description:"number of concurrent workers"`
	Keys        int64   `long:"keys" default:"20000" description:"keys inserted by each worker"`
	DeleteRatio float64 `long:"delete-ratio" default:"0.25" description:"share of inserted keys deleted again"`
	Hasher      string  `long:"hasher" default:"xxhash" choice:"xxhash" choice:"murmur3" description:"hash function"`
	Seed        int64   `long:"seed" default:"1" description:"random seed"`
	Workload    string  `long:"workload" description:"replay a REPL workload file instead of generating keys"`
}

// Get delay jitter.
func jitter(rng *rand.Rand) time.Duration {
	return time.Duration(rng.Int63n(maxDelay)+1) * time.Millisecond
}

// runWorker inserts its own key range, deleting a share of it, and returns how many keys it kept.
func runWorker(ctx context.Context, table *hash.Table[int64, int64], opts Options, w int) (int64, error) {
	rng := rand.New(rand.NewSource(opts.Seed + int64(w)))
	kept := int64(0)
	for i := int64(0); i < opts.Keys; i++ {
		if ctx.Err() != nil {
			return kept, ctx.Err()
		}
		key := int64(w)*opts.Keys + i
		if err := table.Insert(key, key*2); err != nil {
			return kept, fmt.Errorf("insert %d: %w", key, err)
		}
		value, err := table.Find(key)
		if err != nil {
			return kept, fmt.Errorf("find %d: %w", key, err)
		}
		if value != key*2 {
			return kept, fmt.Errorf("find %d: got %d, want %d", key, value, key*2)
		}
		if rng.Float64() >= opts.DeleteRatio {
			kept++
			continue
		}
		if err := table.Delete(key); err != nil {
			return kept, fmt.Errorf("delete %d: %w", key, err)
		}
		if _, err := table.Find(key); !errors.Is(err, hash.ErrKeyNotFound) {
			return kept, fmt.Errorf("find %d after delete: %v", key, err)
		}
	}
	return kept, nil
}

// runGenerated drives a single table directly from every worker.
func runGenerated(opts Options) error {
	hasher, err := hash.Int64HasherByName(opts.Hasher)
	if err != nil {
		return err
	}
	table := hash.NewTable[int64, int64](hasher, opts.Limits)
	start := time.Now()
	var kept atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < opts.Workers; w++ {
		w := w
		g.Go(func() error {
			n, err := runWorker(ctx, table, opts, w)
			kept.Add(n)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := table.Verify(); err != nil {
		return err
	}
	if table.GetNumPairs() != kept.Load() {
		return fmt.Errorf("table holds %d pairs, workers kept %d", table.GetNumPairs(), kept.Load())
	}
	fmt.Printf("%d workers, %d keys each in %v: global depth %d, buckets %d, pairs %d\n",
		opts.Workers, opts.Keys, elapsed.Round(time.Millisecond),
		table.GetGlobalDepth(), table.GetNumBuckets(), table.GetNumPairs())
	return nil
}

// Parse workload
func parseWorkload(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var workload []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		workload = append(workload, scanner.Text())
	}
	return workload, scanner.Err()
}

// runWorkload replays a workload file against a fresh catalog holding table t.
func runWorkload(opts Options) error {
	workload, err := parseWorkload(opts.Workload)
	if err != nil {
		return err
	}
	db, err := database.Open(opts.Limits, opts.Hasher)
	if err != nil {
		return err
	}
	if _, err := db.CreateTable("t", ""); err != nil {
		return err
	}
	if err := replayWorkload(db, workload, opts, os.Stdout); err != nil {
		return err
	}
	return db.Close()
}

// replayWorkload sends the workload lines through the database REPL, split
// round-robin between the workers. Lines handled by different workers may run
// in any order.
func replayWorkload(db *database.Database, workload []string, opts Options, output io.Writer) error {
	r := database.DatabaseRepl(db)
	c := make(chan string)
	done := make(chan struct{})
	go func() {
		r.RunChan(c, uuid.New(), "", output)
		close(done)
	}()

	var g errgroup.Group
	for w := 0; w < opts.Workers; w++ {
		w := w
		g.Go(func() error {
			rng := rand.New(rand.NewSource(opts.Seed + int64(w)))
			for i := w; i < len(workload); i += opts.Workers {
				time.Sleep(jitter(rng))
				c <- workload[i]
			}
			return nil
		})
	}
	err := g.Wait()
	close(c)
	<-done
	return err
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if err := config.SetupLogging(opts.LogOptions); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := opts.Limits.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if opts.Workers < 1 {
		fmt.Fprintln(os.Stderr, "need at least one worker")
		os.Exit(1)
	}

	run := runGenerated
	if opts.Workload != "" {
		run = runWorkload
	}
	if err := run(opts); err != nil {
		log.Error(err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("all invariants hold")
}
