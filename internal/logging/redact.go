package logging

import (
	"context"
	"log/slog"
	"strings"
)

const redacted = "[redacted]"

// secretKeys are attribute keys whose values never reach a sink.
var secretKeys = map[string]struct{}{
	"authorization": {},
	"client_secret": {},
	"signature":     {},
	"p256dh":        {},
	"auth":          {},
	"token":         {},
}

type redactor struct {
	slog.Handler
}

// Redact masks the values of secret attributes, including those nested in
// groups, before records reach next.
func Redact(next slog.Handler) slog.Handler {
	return redactor{Handler: next}
}

func (r redactor) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redactAttr(a))
		return true
	})
	return r.Handler.Handle(ctx, clean)
}

func (r redactor) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redactAttr(a)
	}
	return redactor{Handler: r.Handler.WithAttrs(clean)}
}

func (r redactor) WithGroup(name string) slog.Handler {
	return redactor{Handler: r.Handler.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, member := range group {
			clean[i] = redactAttr(member)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}
	if _, ok := secretKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}
