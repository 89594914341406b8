package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/storefrontapp/storefront/internal/auth"
	"github.com/storefrontapp/storefront/internal/db"
	"github.com/storefrontapp/storefront/internal/models"
	"github.com/storefrontapp/storefront/internal/observability"
	"github.com/storefrontapp/storefront/internal/payment"
)

const maxReceiptLength = 255

// InitiatePaymentInput describes a payment attempt. A zero Amount means the
// order total.
type InitiatePaymentInput struct {
	OrderID uuid.UUID
	Amount  int64
	Receipt string
	Caller  auth.Caller
}

// InitiatePayment opens a payment attempt for an unpaid order. It never
// changes the order, so a failed attempt can simply be retried.
func (s *OrderService) InitiatePayment(ctx context.Context, input InitiatePaymentInput) (*payment.Intent, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.initiate_payment",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("InitiatePayment"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)

	order, err := s.ownedOrder(ctx, input.OrderID, input.Caller)
	if err != nil {
		return nil, err
	}
	if order.IsPaid {
		return nil, ErrAlreadyPaid
	}
	if order.Status != models.StatusProcessing {
		return nil, fmt.Errorf("%w: cannot pay an order in status %s", ErrInvalidTransition, order.Status)
	}

	amount := input.Amount
	if amount == 0 {
		amount = order.TotalPrice
	}
	if amount != order.TotalPrice {
		observability.CountReason(ctx, "payment.initiate.failed", "amount_mismatch")
		return nil, fieldError("amount", fmt.Sprintf("must equal the order total %d", order.TotalPrice))
	}

	receipt := strings.TrimSpace(input.Receipt)
	if receipt == "" {
		receipt = fmt.Sprintf("rcpt_%s_%d", order.ID, s.now().UnixNano())
	}
	if len(receipt) > maxReceiptLength {
		return nil, fieldError("receipt", fmt.Sprintf("must be at most %d characters", maxReceiptLength))
	}

	intent, err := s.gateway.CreateIntent(ctx, payment.IntentParams{
		Amount:   amount,
		Currency: order.Currency,
		Receipt:  receipt,
		Metadata: map[string]string{
			payment.MetadataOrderID:   order.ID.String(),
			payment.MetadataUserID:    order.UserID,
			payment.MetadataEmail:     order.CustomerEmail,
			payment.MetadataPurpose:   payment.PurposeOrderPayment,
			payment.MetadataCreatedAt: strconv.FormatInt(s.now().Unix(), 10),
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidAmount):
			return nil, fieldError("amount", err.Error())
		case errors.Is(err, payment.ErrMissingReceipt):
			return nil, fieldError("receipt", err.Error())
		case errors.Is(err, ErrDuplicateReceipt):
			observability.CountReason(ctx, "payment.initiate.failed", "duplicate_receipt")
		default:
			observability.CountReason(ctx, "payment.initiate.failed", "gateway")
		}
		logger.Warn("failed to create payment intent", "order_id", order.ID, "error", err)
		return nil, err
	}

	logger.Info("payment intent created", "order_id", order.ID, "intent_id", intent.ID, "receipt", receipt)
	return intent, nil
}

// ConfirmPaymentInput carries the parameters appended to the payment return
// URL.
type ConfirmPaymentInput struct {
	OrderID      uuid.UUID
	IntentID     string
	ClientSecret string
	Caller       auth.Caller
}

// ConfirmPayment issues the verification signature for a completed intent
// that belongs to the caller's order. It does not mark the order paid.
func (s *OrderService) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*payment.Confirmation, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.confirm_payment",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("ConfirmPayment"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	order, err := s.ownedOrder(ctx, input.OrderID, input.Caller)
	if err != nil {
		return nil, err
	}

	confirmation, err := s.gateway.Confirm(ctx, input.IntentID, input.ClientSecret)
	switch {
	case errors.Is(err, payment.ErrUnknownIntent):
		observability.CountReason(ctx, "payment.confirm.failed", "unknown_intent")
		return nil, ErrNotFound
	case errors.Is(err, ErrPaymentIncomplete):
		observability.CountReason(ctx, "payment.confirm.failed", "incomplete")
		return nil, err
	case err != nil:
		observability.CountReason(ctx, "payment.confirm.failed", "gateway")
		s.loggerFromContext(ctx).Warn("payment confirmation unavailable", "order_id", order.ID, "error", err)
		return nil, err
	}
	if confirmation.OrderRef != order.ID.String() {
		observability.CountReason(ctx, "payment.confirm.failed", "order_mismatch")
		return nil, ErrNotFound
	}

	s.loggerFromContext(ctx).Info("payment confirmation issued", "order_id", order.ID, "intent_id", confirmation.IntentID)
	return confirmation, nil
}

type VerifyPaymentInput struct {
	OrderID uuid.UUID
	Payload payment.VerifyPayload
	Caller  auth.Caller
}

// PaymentResult reports the outcome of a verification. Valid=false leaves the
// order untouched and the client should start a new payment attempt.
type PaymentResult struct {
	Valid       bool          `json:"valid"`
	Reason      string        `json:"reason,omitempty"`
	AlreadyPaid bool          `json:"already_paid"`
	Order       *models.Order `json:"order,omitempty"`
}

// VerifyPayment checks the payment confirmation with the gateway and marks the
// order paid at most once. Repeating a successful verification returns the
// paid order with AlreadyPaid set.
func (s *OrderService) VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*PaymentResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.verify_payment",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("VerifyPayment"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)

	order, err := s.ownedOrder(ctx, input.OrderID, input.Caller)
	if err != nil {
		return nil, err
	}

	verification, err := s.gateway.Verify(ctx, input.Payload)
	if err != nil {
		observability.CountReason(ctx, "payment.verify.failed", "gateway")
		logger.Warn("payment verification unavailable", "order_id", order.ID, "error", err)
		return nil, err
	}
	if !verification.Valid {
		return s.rejectPayment(ctx, order, verification.Reason), nil
	}
	if reason := paymentMismatch(order, verification.OrderRef, verification.AmountPaid, verification.Currency); reason != "" {
		return s.rejectPayment(ctx, order, reason), nil
	}

	return s.markPaid(ctx, order.ID, db.PaymentRecord{
		IntentID:  verification.IntentID,
		PaymentID: verification.PaymentID,
		PaidAt:    s.now(),
	}, "verify")
}

// ConfirmPaymentFromWebhook applies a payment reported by the gateway
// callback. It shares the idempotent paid transition with VerifyPayment.
func (s *OrderService) ConfirmPaymentFromWebhook(ctx context.Context, paid payment.WebhookPayment) (*PaymentResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.confirm_payment_webhook",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("ConfirmPaymentFromWebhook"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	orderID, err := uuid.Parse(paid.OrderRef)
	if err != nil {
		observability.CountReason(ctx, "payment.webhook.failed", "missing_order_ref")
		return nil, fieldError("order_id", "payment intent has no order reference")
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if reason := paymentMismatch(order, paid.OrderRef, paid.AmountPaid, paid.Currency); reason != "" {
		return s.rejectPayment(ctx, order, reason), nil
	}

	return s.markPaid(ctx, order.ID, db.PaymentRecord{
		IntentID:  paid.IntentID,
		PaymentID: paid.PaymentID,
		PaidAt:    s.now(),
	}, "webhook")
}

func (s *OrderService) markPaid(ctx context.Context, orderID uuid.UUID, record db.PaymentRecord, source string) (*PaymentResult, error) {
	logger := s.loggerFromContext(ctx)

	order, applied, err := s.orders.MarkPaid(ctx, orderID, record)
	if err != nil {
		observability.CountReason(ctx, "payment.mark_paid.failed", source)
		return nil, err
	}
	if !applied {
		logger.Info("payment already recorded", "order_id", orderID, "intent_id", record.IntentID, "source", source)
		return &PaymentResult{Valid: true, AlreadyPaid: true, Order: order}, nil
	}

	observability.CountReason(ctx, "payment.confirmed", source)
	logger.Info("order paid", "order_id", orderID, "intent_id", record.IntentID, "payment_id", record.PaymentID, "source", source)

	s.notifier.NotifyPaymentReceived(ctx, order)
	return &PaymentResult{Valid: true, Order: order}, nil
}

func (s *OrderService) rejectPayment(ctx context.Context, order *models.Order, reason string) *PaymentResult {
	observability.CountReason(ctx, "payment.verify.invalid", reason)
	s.loggerFromContext(ctx).Warn("payment verification rejected", "order_id", order.ID, "reason", reason)
	return &PaymentResult{Valid: false, Reason: reason}
}

// paymentMismatch returns a non-empty reason when a verified payment does not
// belong to the order or does not cover its total.
func paymentMismatch(order *models.Order, orderRef string, amountPaid int64, currency string) string {
	switch {
	case orderRef != order.ID.String():
		return "payment belongs to a different order"
	case amountPaid < order.TotalPrice:
		return "amount paid is less than the order total"
	case currency != "" && !strings.EqualFold(currency, order.Currency):
		return "payment currency does not match the order"
	default:
		return ""
	}
}

func (s *OrderService) ownedOrder(ctx context.Context, orderID uuid.UUID, caller auth.Caller) (*models.Order, error) {
	if !caller.Authenticated() {
		return nil, ErrForbidden
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID && !caller.IsAdmin() {
		return nil, ErrNotFound
	}
	return order, nil
}
