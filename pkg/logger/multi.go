package logger

import (
	"context"
	"errors"
	"log/slog"
)

// fanout delivers each record to every sink. A failing sink does not keep
// the record from the others; the errors are joined.
type fanout []slog.Handler

// Multi returns a logger writing every record through each of loggers, e.g.
// the console logger of a service and its JSON log file. Nil loggers are
// skipped; a single remaining logger is returned as is.
func Multi(loggers ...*slog.Logger) *slog.Logger {
	var sinks fanout
	for _, l := range loggers {
		if l != nil {
			sinks = append(sinks, l.Handler())
		}
	}

	switch len(sinks) {
	case 0:
		return Nop()
	case 1:
		return slog.New(sinks[0])
	}
	return slog.New(sinks)
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(derive func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = derive(h)
	}
	return out
}
