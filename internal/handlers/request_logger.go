package handlers

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/storefrontapp/storefront/internal/logging"
)

const maxRequestIDLength = 64

type requestIDKey struct{}

// statusRecorder captures what the handler wrote. A hijacked connection is an
// admin socket whose lifetime, not response, is being logged.
type statusRecorder struct {
	http.ResponseWriter
	status   int
	bytes    int
	hijacked bool
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	conn, rw, err := hijacker.Hijack()
	if err == nil {
		w.hijacked = true
		w.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// RequestLogger opens the request transaction, assigns the request id and
// stores a request-scoped logger in the context.
func (h *Handlers) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := routeLabel(r)
		if route == "" {
			route = "unknown"
		}

		requestID := requestIDFromRequest(r)
		w.Header().Set("X-Request-ID", requestID)

		ctx := r.Context()
		if sentry.GetHubFromContext(ctx) == nil {
			ctx = sentry.SetHubOnContext(ctx, sentry.CurrentHub().Clone())
		}
		tx := sentry.StartTransaction(ctx,
			r.Method+" "+routeTemplate(r),
			sentry.ContinueFromRequest(r),
			sentry.WithOpName("http.server"),
			sentry.WithTransactionSource(sentry.SourceRoute),
		)
		tx.SetData("http.request_id", requestID)
		ctx = tx.Context()

		logger := h.logger.With(
			"request_id", requestID,
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"remote_ip", clientIP(r),
		)
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)
		ctx = logging.WithLogger(ctx, logger)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		tx.Status = sentry.HTTPtoSpanStatus(status)
		tx.Finish()

		if rec.hijacked {
			logger.Info("admin socket closed", "duration_ms", elapsed.Milliseconds())
			return
		}

		recordRequestMetrics(ctx, r.Method, route, status, elapsed)

		attrs := []any{"status", status, "duration_ms", elapsed.Milliseconds(), "bytes", rec.bytes}
		switch {
		case r.URL.Path == "/health":
			logger.Debug("health check completed", attrs...)
		case status >= http.StatusInternalServerError:
			logger.Error("request failed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	})
}

func recordRequestMetrics(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	attrs := []attribute.Builder{
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	}
	meter := sentry.NewMeter(ctx).WithCtx(ctx)
	meter.Count("http.server.requests", 1, sentry.WithAttributes(attrs...))
	meter.Distribution(
		"http.server.duration",
		float64(elapsed.Milliseconds()),
		sentry.WithUnit(sentry.UnitMillisecond),
		sentry.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.String("http.status_class", fmt.Sprintf("%dxx", status/100)),
		),
	)
	if status >= http.StatusInternalServerError {
		meter.Count("http.server.errors", 1, sentry.WithAttributes(attrs...))
	}
}

// requestIDFromContext returns the id assigned by RequestLogger.
func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// requestIDFromRequest reuses a caller-supplied X-Request-ID when it is short
// and made of URL-safe characters; otherwise a new one is generated.
func requestIDFromRequest(r *http.Request) string {
	if r == nil {
		return uuid.NewString()
	}
	id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if id == "" || len(id) > maxRequestIDLength {
		return uuid.NewString()
	}
	for _, c := range id {
		if !isRequestIDRune(c) {
			return uuid.NewString()
		}
	}
	return id
}

func isRequestIDRune(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.':
		return true
	default:
		return false
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// routeLabel prefers the route name ("orders.get") and falls back to the
// path template.
func routeLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	if name := route.GetName(); name != "" {
		return name
	}
	template, _ := route.GetPathTemplate()
	return template
}

// routeTemplate keeps order ids out of transaction names.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil && template != "" {
			return template
		}
	}
	return r.URL.Path
}
