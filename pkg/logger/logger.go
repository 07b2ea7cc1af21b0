// Package logger builds the slog loggers used across vectorvault. Operators and
// the coordinator log JSON when running as services, CLI commands log through
// the charmbracelet/log handler.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/term"
)

type config struct {
	level     slog.Level
	pretty    bool
	json      bool
	source    bool
	component string
	writers   []io.Writer
}

// New creates a *slog.Logger configured by the given options. Without options
// it logs text at Info level to os.Stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer = os.Stdout
	switch len(c.writers) {
	case 0:
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	l := slog.New(c.handler(w))
	if c.component != "" {
		l = l.With("component", c.component)
	}
	return l
}

func (c *config) handler(w io.Writer) slog.Handler {
	switch {
	case c.pretty:
		return charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			ReportCaller:    c.source,
			Level:           charmLevel(c.level),
		})
	case c.json:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		})
	}
}

// NewFile creates a JSON logger appending to path alongside the given
// options. The caller closes the returned file.
func NewFile(path string, opts ...Option) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	opts = append(opts, WithWriter(f), WithJSON(true), WithPretty(false))
	return New(opts...), f, nil
}

// Service builds the logger used by long-running commands: console output,
// pretty on a terminal and JSON otherwise, plus a JSON copy in logFile when
// it is set.
func Service(component string, debug bool, logFile string) (*slog.Logger, io.Closer, error) {
	console := New(
		WithDebug(debug),
		WithPretty(isTerminal(os.Stdout)),
		WithJSON(true),
		WithComponent(component),
	)
	if logFile == "" {
		return console, nopCloser{}, nil
	}

	file, closer, err := NewFile(logFile, WithDebug(debug), WithComponent(component))
	if err != nil {
		return nil, nil, err
	}
	return Multi(console, file), closer, nil
}

// Nop returns a logger that discards every record.
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

func charmLevel(l slog.Level) charmlog.Level {
	if l <= slog.LevelDebug {
		return charmlog.DebugLevel
	}
	return charmlog.InfoLevel
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
