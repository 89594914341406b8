package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/storefrontapp/storefront/internal/auth"
	"github.com/storefrontapp/storefront/internal/cache"
	"github.com/storefrontapp/storefront/internal/config"
	"github.com/storefrontapp/storefront/internal/logging"
	"github.com/storefrontapp/storefront/internal/models"
	"github.com/storefrontapp/storefront/internal/payment"
	"github.com/storefrontapp/storefront/internal/services"
	"github.com/storefrontapp/storefront/internal/session"
)

const maxJSONBodyBytes = 64 << 10

type pinger interface {
	Ping(ctx context.Context) error
}

type orderService interface {
	PlaceOrder(ctx context.Context, input services.PlaceOrderInput) (*models.Order, error)
	InitiatePayment(ctx context.Context, input services.InitiatePaymentInput) (*payment.Intent, error)
	ConfirmPayment(ctx context.Context, input services.ConfirmPaymentInput) (*payment.Confirmation, error)
	VerifyPayment(ctx context.Context, input services.VerifyPaymentInput) (*services.PaymentResult, error)
	ConfirmPaymentFromWebhook(ctx context.Context, paid payment.WebhookPayment) (*services.PaymentResult, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, caller auth.Caller) (*models.Order, error)
	ListMyOrders(ctx context.Context, caller auth.Caller, page, size int) (*services.OrderPage, error)
	ListOrders(ctx context.Context, page, size int) (*services.OrderPage, error)
}

type subscriptionRegistry interface {
	Subscribe(ctx context.Context, sub *models.PushSubscription) error
	Unsubscribe(ctx context.Context, userID, endpoint string) error
}

type socketHub interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

// Handlers provides the storefront HTTP API.
type Handlers struct {
	config         *config.Config
	db             pinger
	orders         orderService
	registry       subscriptionRegistry
	hub            socketHub
	verifier       *auth.Verifier
	sessionManager *session.Manager
	cacheProvider  cache.Provider
	stripeRouter   *StripeEventRouter
	validate       *validator.Validate
	logger         *slog.Logger
}

type Dependencies struct {
	Config         *config.Config
	DB             pinger
	Orders         orderService
	Registry       subscriptionRegistry
	Hub            socketHub
	Verifier       *auth.Verifier
	SessionManager *session.Manager
	CacheProvider  cache.Provider
	StripeRouter   *StripeEventRouter
	Logger         *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("handlers dependencies: orders is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("handlers dependencies: registry is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("handlers dependencies: hub is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("handlers dependencies: verifier is required")
	}
	if deps.SessionManager == nil {
		return nil, fmt.Errorf("handlers dependencies: sessionManager is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.StripeRouter == nil {
		return nil, fmt.Errorf("handlers dependencies: stripeRouter is required")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonTagName)

	return &Handlers{
		config:         deps.Config,
		db:             deps.DB,
		orders:         deps.Orders,
		registry:       deps.Registry,
		hub:            deps.Hub,
		verifier:       deps.Verifier,
		sessionManager: deps.SessionManager,
		cacheProvider:  deps.CacheProvider,
		stripeRouter:   deps.StripeRouter,
		validate:       validate,
		logger:         logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// VAPIDPublicKey returns the key browsers need to create a push subscription.
func (h *Handlers) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if !h.config.PushEnabled() {
		writeError(w, http.StatusNotFound, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.config.VAPIDPublicKey})
}

// SessionMiddleware adds an existing guest session to the request context.
func (h *Handlers) SessionMiddleware(next http.Handler) http.Handler {
	return h.sessionManager.Middleware(next)
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

// decodeJSON reads a size-limited JSON body into dst and runs struct
// validation on it.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return &services.ValidationError{Fields: map[string]string{"body": "must be a valid JSON object"}}
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationFromStruct(err)
	}
	return nil
}

func SecureCookiesFromConfig(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		if parsed, err := url.Parse(baseURL); err == nil {
			return strings.EqualFold(parsed.Scheme, "https")
		}
	}

	return cfg.Port == "443" || cfg.Port == "8443"
}
