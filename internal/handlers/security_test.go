package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storefrontapp/storefront/internal/config"
)

func TestRequireSameOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		origin     string
		referer    string
		cookie     bool
		bearer     bool
		wantStatus int
	}{
		{name: "matching origin", method: http.MethodPost, origin: "https://example.com", cookie: true, wantStatus: http.StatusNoContent},
		{name: "matching referer", method: http.MethodPatch, referer: "https://example.com/admin", cookie: true, wantStatus: http.StatusNoContent},
		{name: "missing origin and referer", method: http.MethodPost, cookie: true, wantStatus: http.StatusForbidden},
		{name: "cross origin", method: http.MethodPost, origin: "https://attacker.example", cookie: true, wantStatus: http.StatusForbidden},
		{name: "cross origin referer", method: http.MethodDelete, referer: "https://attacker.example/page", cookie: true, wantStatus: http.StatusForbidden},
		{name: "read only", method: http.MethodGet, origin: "https://attacker.example", cookie: true, wantStatus: http.StatusNoContent},
		{name: "bearer token", method: http.MethodPost, origin: "https://attacker.example", cookie: true, bearer: true, wantStatus: http.StatusNoContent},
		{name: "no cookies", method: http.MethodPost, wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := &Handlers{
				config: &config.Config{BaseURL: "https://example.com"},
			}
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})

			req := httptest.NewRequest(tt.method, "https://example.com/orders", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			if tt.cookie {
				req.AddCookie(&http.Cookie{Name: "storefront_guest", Value: "abc"})
			}
			if tt.bearer {
				req.Header.Set("Authorization", "Bearer token")
			}
			rec := httptest.NewRecorder()

			h.RequireSameOrigin(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	h := &Handlers{}
	rec := httptest.NewRecorder()
	h.SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing security headers: %v", rec.Header())
	}
}
