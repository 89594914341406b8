package handlers

import (
	"net/http"

	"github.com/storefrontapp/storefront/internal/auth"
	"github.com/storefrontapp/storefront/internal/models"
	"github.com/storefrontapp/storefront/internal/services"
)

// AdminOrders handles GET /admin/orders?page=&limit=.
func (h *Handlers) AdminOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, size, err := pageParams(r)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	result, err := h.orders.ListOrders(ctx, page, size)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AdminUpdateStatus handles PATCH /admin/orders/{orderId}/status.
func (h *Handlers) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := orderIDFromPath(r)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	var req statusRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		h.writeServiceError(ctx, w, &services.ValidationError{Fields: map[string]string{"status": err.Error()}})
		return
	}

	order, err := h.orders.TransitionStatus(ctx, orderID, status)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	caller, _ := auth.CallerFromContext(ctx)
	logger.Info("admin changed order status", "order_id", orderID, "status", order.Status, "admin_id", caller.UserID)
	writeJSON(w, http.StatusOK, order)
}

// AdminSocket handles GET /admin/ws and blocks until the socket closes.
func (h *Handlers) AdminSocket(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())
	if err := h.hub.Serve(w, r, caller.UserID); err != nil {
		// The upgrader has already written the HTTP error.
		h.loggerFromContext(r.Context()).Warn("admin socket upgrade failed", "error", err)
	}
}
