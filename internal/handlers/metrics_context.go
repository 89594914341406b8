package handlers

import (
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/storefrontapp/storefront/internal/auth"
	"github.com/storefrontapp/storefront/internal/observability"
)

// MetricsContext adds a request-scoped, pre-attributed meter to the context.
func (h *Handlers) MetricsContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestIDFromContext(ctx)
		if requestID == "" {
			requestID = requestIDFromRequest(r)
		}

		attrs := []attribute.Builder{
			attribute.String("http.request_id", requestID),
			attribute.String("http.method", r.Method),
			attribute.String("network.client.ip", clientIP(r)),
		}
		if route := routeLabel(r); route != "" {
			attrs = append(attrs, attribute.String("http.route", route))
		}
		if userAgent := strings.TrimSpace(r.UserAgent()); userAgent != "" {
			attrs = append(attrs, attribute.String("http.user_agent", userAgent))
		}
		if referer := strings.TrimSpace(r.Referer()); referer != "" {
			attrs = append(attrs, attribute.String("http.referer", referer))
		}
		if r.ContentLength >= 0 {
			attrs = append(attrs, attribute.Int64("http.request_content_length", r.ContentLength))
		}

		if caller, ok := auth.CallerFromContext(ctx); ok {
			attrs = append(attrs,
				attribute.String("user.id", caller.UserID),
				attribute.Bool("user.guest", caller.Guest),
			)
			if caller.Role != "" {
				attrs = append(attrs, attribute.String("user.role", caller.Role))
			}
		}

		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(attrs...)

		ctx = observability.WithMeter(ctx, meter)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
