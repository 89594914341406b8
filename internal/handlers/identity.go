package handlers

import (
	"errors"
	"net/http"

	"github.com/storefrontapp/storefront/internal/auth"
	"github.com/storefrontapp/storefront/internal/logging"
	"github.com/storefrontapp/storefront/internal/observability"
	"github.com/storefrontapp/storefront/internal/session"
)

// Identify resolves the caller from a bearer token or, failing that, from an
// existing guest session. Requests without either continue anonymously.
func (h *Handlers) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if header := r.Header.Get("Authorization"); header != "" {
			token, ok := auth.BearerToken(header)
			if !ok {
				observability.CountReason(ctx, "auth.rejected", "malformed_header")
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}
			caller, err := h.verifier.Parse(token)
			if err != nil {
				reason := "invalid_token"
				if errors.Is(err, auth.ErrMissingToken) {
					reason = "missing_token"
				}
				observability.CountReason(ctx, "auth.rejected", reason)
				h.loggerFromContext(ctx).Info("rejected bearer token", "error", err)
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			ctx, _ = logging.With(ctx, h.logger, "user_id", caller.UserID)
			next.ServeHTTP(w, r.WithContext(auth.WithCaller(ctx, caller)))
			return
		}

		if data := session.FromContext(ctx); data != nil {
			caller := guestCaller(data)
			ctx, _ = logging.With(ctx, h.logger, "user_id", caller.UserID)
			ctx = auth.WithCaller(ctx, caller)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireShopper lets identified callers through and starts a guest session
// for everyone else.
func (h *Handlers) RequireShopper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, ok := auth.CallerFromContext(ctx); ok {
			next.ServeHTTP(w, r)
			return
		}

		data, err := h.sessionManager.EnsureGuest(ctx, w, r)
		if err != nil {
			h.loggerFromContext(ctx).Error("failed to start guest session", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		caller := guestCaller(data)
		ctx, logger := logging.With(ctx, h.logger, "user_id", caller.UserID)
		logger.Debug("started guest session")
		next.ServeHTTP(w, r.WithContext(auth.WithCaller(ctx, caller)))
	})
}

// RequireAdmin rejects callers without the admin role.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := auth.CallerFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !caller.IsAdmin() {
			observability.CountReason(r.Context(), "auth.rejected", "not_admin")
			h.loggerFromContext(r.Context()).Warn("admin route denied", "user_id", caller.UserID)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func guestCaller(data *session.Data) auth.Caller {
	return auth.Caller{UserID: data.OwnerID(), Email: data.Email, Guest: true}
}
