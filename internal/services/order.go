package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/storefrontapp/storefront/internal/auth"
	"github.com/storefrontapp/storefront/internal/catalog"
	"github.com/storefrontapp/storefront/internal/db"
	"github.com/storefrontapp/storefront/internal/logging"
	"github.com/storefrontapp/storefront/internal/models"
	"github.com/storefrontapp/storefront/internal/observability"
	"github.com/storefrontapp/storefront/internal/payment"
)

const (
	maxLineItems    = 50
	maxItemQuantity = 99
)

type orderRepository interface {
	CreatePending(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, record db.PaymentRecord) (*models.Order, bool, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) (*models.Order, error)
	ListForUser(ctx context.Context, userID string, page db.Page) ([]*models.Order, error)
	CountForUser(ctx context.Context, userID string) (int, error)
	ListRecent(ctx context.Context, page db.Page) ([]*models.Order, error)
	CountAll(ctx context.Context) (int, error)
}

type productCatalog interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
}

type paymentGateway interface {
	CreateIntent(ctx context.Context, params payment.IntentParams) (*payment.Intent, error)
	Verify(ctx context.Context, payload payment.VerifyPayload) (payment.Verification, error)
	Confirm(ctx context.Context, intentID, clientSecret string) (*payment.Confirmation, error)
}

type orderPricer interface {
	Quote(items []models.OrderItem) (catalog.Quote, error)
}

// orderNotifier delivers order events in the background. Implementations must
// return without waiting for delivery.
type orderNotifier interface {
	NotifyNewOrder(ctx context.Context, order *models.Order)
	NotifyPaymentReceived(ctx context.Context, order *models.Order)
	NotifyStatusChanged(ctx context.Context, order *models.Order)
}

type OrderServiceConfig struct {
	Currency    string
	MaxPageSize int
}

type OrderService struct {
	orders   orderRepository
	products productCatalog
	gateway  paymentGateway
	pricer   orderPricer
	notifier orderNotifier
	cfg      OrderServiceConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewOrderService(orders orderRepository, products productCatalog, gateway paymentGateway, pricer orderPricer, notifier orderNotifier, cfg OrderServiceConfig, logger *slog.Logger) *OrderService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cfg.Currency == "" {
		cfg.Currency = "inr"
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 50
	}

	return &OrderService{
		orders:   orders,
		products: products,
		gateway:  gateway,
		pricer:   pricer,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	Size      string
	Color     string
}

// PlaceOrderInput is a submitted checkout. Quote is the price the client
// displayed, if any; a disagreeing quote rejects the order.
type PlaceOrderInput struct {
	Caller          auth.Caller
	Items           []ItemInput
	ShippingAddress models.Address
	PaymentMethod   string
	CustomerEmail   string
	CustomerName    string
	Quote           *catalog.Quote
}

// PlaceOrder prices the cart from current catalog prices and stores a new
// unpaid order in processing. Admins are notified after the order is stored.
func (s *OrderService) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.place_order",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("PlaceOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		meter.Count("order.create.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	meter.Count("order.create.received", 1)

	if !input.Caller.Authenticated() {
		recordFailure("anonymous")
		return nil, ErrForbidden
	}

	verr := &ValidationError{}
	email := strings.TrimSpace(input.CustomerEmail)
	if email == "" {
		email = input.Caller.Email
	}
	if email == "" {
		verr.add("customer_email", "is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		verr.add("customer_email", "must be a valid email address")
	}
	name := strings.TrimSpace(input.CustomerName)
	if name == "" {
		name = input.Caller.Name
	}

	method, err := models.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		verr.add("payment_method", err.Error())
	}
	for _, field := range input.ShippingAddress.MissingFields() {
		verr.add("shipping_address."+field, "is required")
	}

	switch {
	case len(input.Items) == 0:
		verr.add("items", "at least one item is required")
	case len(input.Items) > maxLineItems:
		verr.add("items", fmt.Sprintf("at most %d line items are allowed", maxLineItems))
	}
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			verr.add(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if item.Quantity < 1 || item.Quantity > maxItemQuantity {
			verr.add(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("must be between 1 and %d", maxItemQuantity))
		}
	}
	if err := verr.errOrNil(); err != nil {
		recordFailure("invalid_input")
		return nil, err
	}

	items, err := s.snapshotItems(ctx, input.Items)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			recordFailure("invalid_items")
		} else {
			recordFailure("catalog_lookup_failed")
		}
		return nil, err
	}

	quote, err := s.pricer.Quote(items)
	if err != nil {
		recordFailure("pricing_failed")
		return nil, fieldError("items", err.Error())
	}
	if input.Quote != nil && *input.Quote != quote {
		recordFailure("quote_mismatch")
		return nil, fieldError("total_price", fmt.Sprintf("prices changed, expected total %d", quote.TotalPrice))
	}

	order := &models.Order{
		UserID:          input.Caller.UserID,
		CustomerEmail:   email,
		CustomerName:    name,
		Items:           items,
		Currency:        s.cfg.Currency,
		PaymentMethod:   method,
		Status:          models.StatusProcessing,
		ShippingAddress: input.ShippingAddress,
	}
	quote.Apply(order)

	if err := s.orders.CreatePending(ctx, order); err != nil {
		recordFailure("order_create_failed")
		if errors.Is(err, db.ErrValidation) {
			return nil, fieldError("items", err.Error())
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	meter.Count("order.created", 1)

	s.loggerFromContext(ctx).Info("order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"user_id", order.UserID,
		"total_price", order.TotalPrice,
		"currency", order.Currency,
	)

	s.notifier.NotifyNewOrder(ctx, order)
	return order, nil
}

// snapshotItems copies the current title and price of each product onto the
// line items.
func (s *OrderService) snapshotItems(ctx context.Context, inputs []ItemInput) ([]models.OrderItem, error) {
	ids := make([]uuid.UUID, 0, len(inputs))
	for _, item := range inputs {
		ids = append(ids, item.ProductID)
	}

	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	verr := &ValidationError{}
	items := make([]models.OrderItem, 0, len(inputs))
	for i, input := range inputs {
		product, ok := products[input.ProductID]
		if !ok || !product.Active {
			verr.add(fmt.Sprintf("items[%d].product_id", i), "product is not available")
			continue
		}
		size := strings.TrimSpace(input.Size)
		color := strings.TrimSpace(input.Color)
		if !product.HasSize(size) {
			verr.add(fmt.Sprintf("items[%d].size", i), "is not offered for this product")
		}
		if !product.HasColor(color) {
			verr.add(fmt.Sprintf("items[%d].color", i), "is not offered for this product")
		}
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Title:     product.Title,
			Size:      size,
			Color:     color,
			Quantity:  input.Quantity,
			UnitPrice: product.Price,
		})
	}
	if err := verr.errOrNil(); err != nil {
		return nil, err
	}
	return items, nil
}

// GetOrder returns the order when the caller owns it or is an admin. Orders of
// other users are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID, caller auth.Caller) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.get_order",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("GetOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canView(order, caller) {
		s.loggerFromContext(ctx).Warn("order access denied", "order_id", orderID, "user_id", caller.UserID)
		return nil, ErrNotFound
	}
	return order, nil
}

func canView(order *models.Order, caller auth.Caller) bool {
	if caller.IsAdmin() {
		return true
	}
	return caller.Authenticated() && order.UserID == caller.UserID
}

type OrderPage struct {
	Orders []*models.Order `json:"orders"`
	Page   int             `json:"page"`
	Size   int             `json:"limit"`
	Total  int             `json:"total"`
}

func (s *OrderService) ListMyOrders(ctx context.Context, caller auth.Caller, page, size int) (*OrderPage, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.list_my_orders",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("ListMyOrders"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if !caller.Authenticated() {
		return nil, ErrForbidden
	}
	window, err := s.page(page, size)
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.ListForUser(ctx, caller.UserID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	total, err := s.orders.CountForUser(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	return &OrderPage{Orders: orders, Page: window.Number, Size: window.Size, Total: total}, nil
}

func (s *OrderService) ListOrders(ctx context.Context, page, size int) (*OrderPage, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.list_orders",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("ListOrders"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	window, err := s.page(page, size)
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.ListRecent(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	total, err := s.orders.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	return &OrderPage{Orders: orders, Page: window.Number, Size: window.Size, Total: total}, nil
}

// page rejects negative values; zero means the default.
func (s *OrderService) page(page, size int) (db.Page, error) {
	verr := &ValidationError{}
	if page < 0 {
		verr.add("page", "must be a positive integer")
	}
	if size < 0 {
		verr.add("limit", "must be a positive integer")
	}
	if err := verr.errOrNil(); err != nil {
		return db.Page{}, err
	}
	return db.NewPage(page, size, s.cfg.MaxPageSize), nil
}

// TransitionStatus applies an admin status change. The store enforces the
// state machine and the paid guard for shipping in one conditional update.
func (s *OrderService) TransitionStatus(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.transition_status",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("TransitionStatus"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	order, err := s.orders.TransitionStatus(ctx, orderID, to)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			meter.Count("order.transition.rejected", 1, sentry.WithAttributes(
				attribute.String("to", string(to)),
			))
			logger.Info("order status transition rejected", "order_id", orderID, "to", to, "error", err)
		}
		return nil, err
	}

	meter.Count("order.transition.applied", 1, sentry.WithAttributes(
		attribute.String("to", string(to)),
	))
	logger.Info("order status changed", "order_id", orderID, "status", order.Status)

	s.notifier.NotifyStatusChanged(ctx, order)
	return order, nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyNewOrder(context.Context, *models.Order)        {}
func (noopNotifier) NotifyPaymentReceived(context.Context, *models.Order) {}
func (noopNotifier) NotifyStatusChanged(context.Context, *models.Order)   {}
