package logging

import (
	"context"
	"errors"
	"log/slog"
)

// Fanout sends each record to every sink that accepts its level. Nil sinks
// are skipped.
func Fanout(sinks ...slog.Handler) slog.Handler {
	var f fanout
	for _, sink := range sinks {
		if sink != nil {
			f = append(f, sink)
		}
	}
	if len(f) == 1 {
		return f[0]
	}
	return f
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sink := range f {
		if sink.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, sink := range f {
		if sink.Enabled(ctx, record.Level) {
			errs = append(errs, sink.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(sink slog.Handler) slog.Handler { return sink.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(sink slog.Handler) slog.Handler { return sink.WithGroup(name) })
}

func (f fanout) each(apply func(slog.Handler) slog.Handler) fanout {
	next := make(fanout, len(f))
	for i, sink := range f {
		next[i] = apply(sink)
	}
	return next
}
