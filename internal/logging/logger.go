package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/lmittmann/tint"
)

type Options struct {
	Level  slog.Level
	Format string
	// Sentry forwards warnings and errors to Sentry when true.
	Sentry bool
}

// New builds the process logger. Text output goes through tint, JSON through
// the stdlib handler, and Sentry is attached as a second sink when enabled.
// Secret attributes are masked for every sink.
func New(w io.Writer, opts Options) *slog.Logger {
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		base = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	default:
		base = tint.NewHandler(w, &tint.Options{Level: opts.Level})
	}

	if !opts.Sentry {
		return slog.New(Redact(base))
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelInfo},
	}.NewSentryHandler(context.Background())

	return slog.New(Redact(Fanout(base, sentryHandler)))
}
