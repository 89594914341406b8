package observability

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
)

type meterContextKey struct{}

// WithMeter returns a context carrying the provided meter.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterContextKey{}, meter.WithCtx(ctx))
}

// MeterFromContext returns the request-scoped meter from context or a new one.
func MeterFromContext(ctx context.Context) sentry.Meter {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter, ok := ctx.Value(meterContextKey{}).(sentry.Meter); ok && meter != nil {
		return meter.WithCtx(ctx)
	}
	return sentry.NewMeter(ctx).WithCtx(ctx)
}

// CountReason increments name by one, tagged with reason.
func CountReason(ctx context.Context, name, reason string) {
	MeterFromContext(ctx).Count(name, 1, sentry.WithAttributes(attribute.String("reason", reason)))
}
