package handlers

import (
	"errors"
	"net/http"

	"github.com/storefrontapp/storefront/internal/auth"
	"github.com/storefrontapp/storefront/internal/db"
	"github.com/storefrontapp/storefront/internal/models"
)

type subscriptionKeys struct {
	P256dh string `json:"p256dh" validate:"required,base64rawurl|base64url"`
	Auth   string `json:"auth" validate:"required,base64rawurl|base64url"`
}

type subscribeRequest struct {
	Endpoint string           `json:"endpoint" validate:"required,url,startswith=https://"`
	Keys     subscriptionKeys `json:"keys"`
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
}

// Subscribe handles POST /notifications/subscriptions. The body is the
// browser's PushSubscription JSON.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := auth.CallerFromContext(ctx)

	var req subscribeRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	sub := &models.PushSubscription{
		UserID:   caller.UserID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := h.registry.Subscribe(ctx, sub); err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	h.loggerFromContext(ctx).Info("push subscription registered", "subscription_id", sub.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"id": sub.ID, "created_at": sub.CreatedAt})
}

// Unsubscribe handles DELETE /notifications/subscriptions.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := auth.CallerFromContext(ctx)

	var req unsubscribeRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	if err := h.registry.Unsubscribe(ctx, caller.UserID, req.Endpoint); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		h.writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
