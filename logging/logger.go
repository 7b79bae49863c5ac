// Package logging wraps charmbracelet/log with the options the Click Fit
// server and CLI share.
//
// A Logger is constructed once in main and handed to every component that
// needs one; nothing in this package holds global state.
//
// Example:
//
//	logger := logging.New(logging.Options{Level: "debug", Development: true})
//	logger.Info("server started", "addr", ":3000")
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Options controls how a Logger is built.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Prefix is printed before every message.
	Prefix string
	// Development turns on caller and timestamp reporting.
	Development bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Logger is a wrapper around the log.Logger from the charmbracelet/log package.
type Logger struct {
	*log.Logger
}

// New creates a Logger from opts.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	base := log.NewWithOptions(out, log.Options{
		ReportCaller:    opts.Development,
		ReportTimestamp: true,
		Prefix:          opts.Prefix,
	})
	base.SetLevel(ParseLevel(opts.Level))

	return &Logger{Logger: base}
}

// NewTestLogger returns a Logger that discards everything.
func NewTestLogger() *Logger {
	return New(Options{Output: io.Discard, Level: "debug"})
}

// ParseLevel maps a level name to a log.Level, defaulting to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// Named returns a child logger whose prefix is the given component name.
func (l *Logger) Named(component string) *Logger {
	child := l.Logger.WithPrefix(component)
	return &Logger{Logger: child}
}

// With returns a child logger that always includes keyvals.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{Logger: l.Logger.With(keyvals...)}
}
