package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"github.com/op/go-logging"
)

var stdoutLogFormat = logging.MustStringFormatter(
	`%{color:reset}%{color}%{time:15:04:05.000} [%{module}] [%{level}] %{message}`,
)

var fileLogFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} [%{module}] [%{shortfunc}] [%{level}] %{message}`,
)

// LogOptions select where log messages go and how many of them.
type LogOptions struct {
	Verbose    bool   `short:"v" long:"verbose" description:"also print log messages to stdout"`
	LogLevel   string `short:"l" long:"loglevel" default:"info" description:"set the logging level [debug, info, notice, warning, error, critical]"`
	LogDir     string `long:"log-dir" default:"data" description:"directory holding the rotating log file"`
	NoLogFiles bool   `long:"no-log-files" description:"do not write a log file"`
}

// SetupLogging installs the logging backends described by opts.
// With neither a log file nor verbose output, log messages are discarded.
func SetupLogging(opts LogOptions) error {
	level, err := logging.LogLevel(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, opts.LogLevel)
	}

	backends := make([]logging.Backend, 0, 2)
	if !opts.NoLogFiles {
		w := &lumberjack.Logger{
			Filename:   filepath.Join(opts.LogDir, LogFileName),
			MaxSize:    10, // Megabytes
			MaxBackups: 3,
			MaxAge:     30, // Days
		}
		backendFile := logging.NewLogBackend(w, "", 0)
		backends = append(backends, logging.NewBackendFormatter(backendFile, fileLogFormat))
	}
	if opts.Verbose {
		backendStdout := logging.NewLogBackend(os.Stdout, "", 0)
		backends = append(backends, logging.NewBackendFormatter(backendStdout, stdoutLogFormat))
	}
	if len(backends) == 0 {
		backends = append(backends, logging.NewLogBackend(io.Discard, "", 0))
	}
	logging.SetBackend(backends...)
	logging.SetLevel(level, "")
	return nil
}
