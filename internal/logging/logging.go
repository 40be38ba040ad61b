// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level  string
	Format string // "text" or "json"

	// Log file; empty means stderr.
	File string

	// Size in megabytes at which File is rotated, and how many
	// rotated files are kept.  Zero keeps every one.
	MaxSizeMB  int
	MaxBackups int
}

// New returns a logger configured by opts.  The returned closer
// releases the log file, if any.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, errors.Wrap(err, "log level")
	}
	log.SetLevel(lvl)

	switch opts.Format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		return nil, nil, errors.Errorf("unknown log format %q", opts.Format)
	}

	if opts.File == "" {
		log.SetOutput(os.Stderr)
		return log, nopCloser{}, nil
	}
	if opts.MaxSizeMB < 0 || opts.MaxBackups < 0 {
		return nil, nil, errors.New("log rotation limits must not be negative")
	}
	f := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	log.SetOutput(f)
	return log, f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
