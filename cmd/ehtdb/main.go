package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"ehtdb/pkg/config"
	"ehtdb/pkg/database"
	"ehtdb/pkg/list"
	"ehtdb/pkg/pager"
	"ehtdb/pkg/repl"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("main")

type Options struct {
	config.LogOptions `group:"Logging Options"`
	config.Config     `group:"Engine Options"`

	Project   string `long:"project" required:"true" choice:"list" choice:"pager" choice:"hash" description:"choose project"`
	NoPrompt  bool   `short:"c" long:"no-prompt" description:"do not print a prompt"`
	Serve     bool   `short:"s" long:"serve" description:"serve the REPL over TCP instead of stdin"`
	Port      int    `short:"p" long:"port" default:"8335" description:"port number to serve on (8335 spells BEES)"`
	Hasher    string `long:"hasher" default:"xxhash" choice:"xxhash" choice:"murmur3" description:"hash function for new tables"`
	PagerFile string `long:"pager-file" default:"data/pager.db" description:"file backing the pager project"`
}

// closeOnce wraps closer so it runs at most once; later calls return its first result.
func closeOnce(closer func() error) func() error {
	var once sync.Once
	var err error
	return func() error {
		once.Do(func() {
			err = closer()
		})
		return err
	}
}

// Listens for SIGINT or SIGTERM and runs closer before exiting.
func setupCloseHandler(closer func() error) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		log.Noticef("received %s, shutting down", sig)
		if err := closer(); err != nil {
			log.Error(err)
			os.Exit(1)
		}
		os.Exit(0)
	}()
}

// Start listening for connections at port `port`, running a REPL on each.
func startServer(r *repl.REPL, prompt string, port int) error {
	handleConn := func(c net.Conn) {
		defer c.Close()
		clientId := uuid.New()
		log.Infof("client %s connected from %s", clientId, c.RemoteAddr())
		r.Run(clientId, prompt, c, c)
		log.Infof("client %s disconnected", clientId)
	}
	listener, err := net.Listen("tcp", fmt.Sprintf(":%v", port))
	if err != nil {
		return err
	}
	fmt.Printf("%v server started listening on localhost:%v\n", config.DBName,
		listener.Addr().(*net.TCPAddr).Port)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warning(err)
			continue
		}
		go handleConn(conn)
	}
}

func run(opts Options) error {
	if err := config.SetupLogging(opts.LogOptions); err != nil {
		return err
	}
	if err := opts.Config.Validate(); err != nil {
		return err
	}

	var r *repl.REPL
	closer := func() error { return nil }
	switch opts.Project {
	case "list":
		r = list.ListRepl(list.NewList[string]())
	case "pager":
		pRepl, p, err := pager.PagerRepl(filepath.Clean(opts.PagerFile), opts.Config)
		if err != nil {
			return err
		}
		r, closer = pRepl, p.Close
	case "hash":
		db, err := database.Open(opts.Limits, opts.Hasher)
		if err != nil {
			return err
		}
		r, closer = database.DatabaseRepl(db), db.Close
	}
	closer = closeOnce(closer)
	defer closer()
	setupCloseHandler(closer)

	log.Infof("starting %s project (bucket size %d, depth ceiling %d)", opts.Project, opts.BucketSize, opts.MaxDepth)
	prompt := config.GetPrompt(!opts.NoPrompt)
	if opts.Serve {
		return startServer(r, prompt, opts.Port)
	}
	r.Run(uuid.New(), prompt, nil, nil)
	return nil
}

// Start the database.
func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
