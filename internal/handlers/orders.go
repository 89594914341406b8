package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/storefrontapp/storefront/internal/auth"
	"github.com/storefrontapp/storefront/internal/catalog"
	"github.com/storefrontapp/storefront/internal/models"
	"github.com/storefrontapp/storefront/internal/payment"
	"github.com/storefrontapp/storefront/internal/services"
	"github.com/storefrontapp/storefront/internal/session"
)

type itemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Size      string `json:"size" validate:"max=32"`
	Color     string `json:"color" validate:"max=32"`
}

type placeOrderRequest struct {
	Items           []itemRequest  `json:"items" validate:"required,min=1,dive"`
	ShippingAddress models.Address `json:"shipping_address"`
	PaymentMethod   string         `json:"payment_method"`
	CustomerEmail   string         `json:"customer_email" validate:"omitempty,email"`
	CustomerName    string         `json:"customer_name" validate:"max=200"`
	Quote           *catalog.Quote `json:"quote"`
}

// PlaceOrder handles POST /orders.
func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := auth.CallerFromContext(ctx)

	var req placeOrderRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	items := make([]services.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.ItemInput{
			ProductID: uuid.MustParse(item.ProductID),
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
		})
	}

	order, err := h.orders.PlaceOrder(ctx, services.PlaceOrderInput{
		Caller:          caller,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		Quote:           req.Quote,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	if caller.Guest {
		if err := h.sessionManager.Remember(ctx, r, order.CustomerEmail); err != nil && !errors.Is(err, session.ErrNoSession) {
			h.loggerFromContext(ctx).Warn("failed to remember guest email", "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, order)
}

type initiatePaymentRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
	Amount  int64  `json:"amount" validate:"gte=0"`
	Receipt string `json:"receipt" validate:"max=255"`
}

// InitiatePayment handles POST /orders/initiate-payment.
func (h *Handlers) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := auth.CallerFromContext(ctx)

	var req initiatePaymentRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	intent, err := h.orders.InitiatePayment(ctx, services.InitiatePaymentInput{
		OrderID: uuid.MustParse(req.OrderID),
		Amount:  req.Amount,
		Receipt: req.Receipt,
		Caller:  caller,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, intent)
}

// ConfirmPayment handles GET /orders/{orderId}/payment-confirmation, the
// return URL of the hosted payment step. It reads the payment_intent and
// payment_intent_client_secret parameters Stripe appends to that URL.
func (h *Handlers) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := auth.CallerFromContext(ctx)

	orderID, err := orderIDFromPath(r)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	query := r.URL.Query()
	intentID := strings.TrimSpace(query.Get("payment_intent"))
	clientSecret := strings.TrimSpace(query.Get("payment_intent_client_secret"))
	if intentID == "" || clientSecret == "" {
		h.writeServiceError(ctx, w, &services.ValidationError{Fields: map[string]string{
			"payment_intent": "payment_intent and payment_intent_client_secret are required",
		}})
		return
	}

	confirmation, err := h.orders.ConfirmPayment(ctx, services.ConfirmPaymentInput{
		OrderID:      orderID,
		IntentID:     intentID,
		ClientSecret: clientSecret,
		Caller:       caller,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmation)
}

type verifyPaymentRequest struct {
	OrderID   string `json:"order_id" validate:"required,uuid"`
	IntentID  string `json:"intent_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// VerifyPayment handles POST /orders/verify-payment. An invalid payment is a
// 402 with valid=false; repeating a valid verification is safe.
func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := auth.CallerFromContext(ctx)

	var req verifyPaymentRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	result, err := h.orders.VerifyPayment(ctx, services.VerifyPaymentInput{
		OrderID: uuid.MustParse(req.OrderID),
		Payload: payment.VerifyPayload{
			IntentID:  req.IntentID,
			PaymentID: req.PaymentID,
			Signature: req.Signature,
		},
		Caller: caller,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	if !result.Valid {
		writeJSON(w, http.StatusPaymentRequired, result)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// MyOrders handles GET /orders/my-orders?page=&limit=.
func (h *Handlers) MyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := auth.CallerFromContext(ctx)

	page, size, err := pageParams(r)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	result, err := h.orders.ListMyOrders(ctx, caller, page, size)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetOrder handles GET /orders/{orderId}.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := auth.CallerFromContext(ctx)

	orderID, err := orderIDFromPath(r)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, caller)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// pageParams reads page and limit. Missing values are zero; present values
// must be positive integers.
func pageParams(r *http.Request) (int, int, error) {
	verr := &services.ValidationError{Fields: map[string]string{}}
	query := r.URL.Query()

	parse := func(name string) int {
		raw := strings.TrimSpace(query.Get(name))
		if raw == "" {
			return 0
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			verr.Fields[name] = "must be a positive integer"
			return 0
		}
		return value
	}

	page := parse("page")
	size := parse("limit")
	if len(verr.Fields) > 0 {
		return 0, 0, verr
	}
	return page, size, nil
}

func orderIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["orderId"]
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, services.ErrNotFound
	}
	return orderID, nil
}
