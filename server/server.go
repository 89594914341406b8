package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/storefrontapp/storefront/internal/config"
	"github.com/storefrontapp/storefront/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.SecurityHeaders)
	r.Use(h.RequestLogger)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")
	r.HandleFunc("/notifications/vapid-public-key", h.VAPIDPublicKey).Methods("GET").Name("notifications.vapid")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}` + "\n"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"error":"method not allowed"}` + "\n"))
	})

	// Shopper routes: signed-in users or guests
	orderRouter := r.PathPrefix("/orders").Subrouter()
	orderRouter.Use(h.SessionMiddleware)
	orderRouter.Use(h.Identify)
	orderRouter.Use(h.RequireShopper)
	orderRouter.Use(h.MetricsContext)
	orderRouter.Use(h.RequireSameOrigin)
	orderRouter.HandleFunc("", h.PlaceOrder).Methods("POST").Name("orders.place")
	orderRouter.HandleFunc("/initiate-payment", h.InitiatePayment).Methods("POST").Name("orders.initiate_payment")
	orderRouter.HandleFunc("/verify-payment", h.VerifyPayment).Methods("POST").Name("orders.verify_payment")
	orderRouter.HandleFunc("/my-orders", h.MyOrders).Methods("GET").Name("orders.mine")
	orderRouter.HandleFunc("/{orderId}/payment-confirmation", h.ConfirmPayment).Methods("GET").Name("orders.confirm_payment")
	orderRouter.HandleFunc("/{orderId}", h.GetOrder).Methods("GET").Name("orders.get")

	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(h.SessionMiddleware)
	adminRouter.Use(h.Identify)
	adminRouter.Use(h.RequireAdmin)
	adminRouter.Use(h.MetricsContext)
	adminRouter.Use(h.RequireSameOrigin)
	adminRouter.HandleFunc("/orders", h.AdminOrders).Methods("GET").Name("admin.orders")
	adminRouter.HandleFunc("/orders/{orderId}/status", h.AdminUpdateStatus).Methods("PATCH").Name("admin.orders.status")
	adminRouter.HandleFunc("/ws", h.AdminSocket).Methods("GET").Name("admin.ws")

	notificationRouter := r.PathPrefix("/notifications/subscriptions").Subrouter()
	notificationRouter.Use(h.SessionMiddleware)
	notificationRouter.Use(h.Identify)
	notificationRouter.Use(h.RequireAdmin)
	notificationRouter.Use(h.MetricsContext)
	notificationRouter.Use(h.RequireSameOrigin)
	notificationRouter.HandleFunc("", h.Subscribe).Methods("POST").Name("notifications.subscribe")
	notificationRouter.HandleFunc("", h.Unsubscribe).Methods("DELETE").Name("notifications.unsubscribe")

	return r
}
