package session

import (
	"context"
	"net/http"
)

type contextKey string

const ctxKey contextKey = "guest_session"

// Middleware attaches an existing guest session to the request context. It
// never creates one.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if data, err := m.GetSession(r.Context(), r); err == nil {
			r = r.WithContext(WithData(r.Context(), data))
		}
		next.ServeHTTP(w, r)
	})
}

func WithData(ctx context.Context, data *Data) context.Context {
	return context.WithValue(ctx, ctxKey, data)
}

// FromContext returns the guest session attached by Middleware, or nil.
func FromContext(ctx context.Context) *Data {
	if ctx == nil {
		return nil
	}
	data, _ := ctx.Value(ctxKey).(*Data)
	return data
}
