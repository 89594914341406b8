package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/storefrontapp/storefront/internal/logging"
	"github.com/storefrontapp/storefront/internal/observability"
	"github.com/storefrontapp/storefront/internal/payment"
	"github.com/storefrontapp/storefront/internal/services"
)

type webhookPaymentConfirmer interface {
	ConfirmPaymentFromWebhook(ctx context.Context, paid payment.WebhookPayment) (*services.PaymentResult, error)
}

type StripeEventRouter struct {
	orders webhookPaymentConfirmer
	logger *slog.Logger
}

func NewStripeEventRouter(orders webhookPaymentConfirmer, logger *slog.Logger) *StripeEventRouter {
	return &StripeEventRouter{
		orders: orders,
		logger: logger,
	}
}

func (r *StripeEventRouter) Handle(ctx context.Context, event *stripeapi.Event) error {
	span := sentry.StartSpan(
		ctx,
		"handler.stripe_router.handle",
		sentry.WithOpName("handler.stripe_router"),
		sentry.WithDescription("StripeEventRouter.Handle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "stripe"))
	meter.Count("webhook.router.received", 1)
	recordFailed := func(reason string) {
		meter.Count("webhook.router.failed", 1, sentry.WithAttributes(attribute.String("reason", reason)))
	}

	if event == nil {
		recordFailed("missing_event")
		return fmt.Errorf("missing stripe event")
	}
	if event.Data == nil {
		recordFailed("missing_event_data")
		return fmt.Errorf("missing stripe event data")
	}
	meter.SetAttributes(attribute.String("webhook.event_type", string(event.Type)))

	logger := logging.FromContext(ctx, r.logger).With("event_id", event.ID, "event_type", event.Type)

	switch string(event.Type) {
	case payment.EventPaymentSucceeded:
		paid, _, err := payment.PaymentFromEvent(event)
		if err != nil {
			recordFailed("payment_intent_decode_failed")
			return err
		}
		result, err := r.orders.ConfirmPaymentFromWebhook(ctx, paid)
		if err != nil {
			recordFailed("payment_intent_succeeded_failed")
			return err
		}
		if !result.Valid {
			// A mismatching payment is logged and acknowledged so Stripe stops retrying.
			logger.Warn("webhook payment does not match its order", "intent_id", paid.IntentID, "reason", result.Reason)
			meter.Count("webhook.router.mismatch", 1)
		}
		meter.Count("webhook.router.processed", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	case payment.EventPaymentFailed:
		var pi stripeapi.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			recordFailed("payment_intent_decode_failed")
			return fmt.Errorf("failed to decode payment intent: %w", err)
		}
		attrs := []any{"intent_id", pi.ID, "order_id", pi.Metadata[payment.MetadataOrderID]}
		if pi.LastPaymentError != nil {
			attrs = append(attrs, "decline_code", pi.LastPaymentError.DeclineCode, "message", pi.LastPaymentError.Msg)
		}
		// The order stays unpaid; the shopper can start a new attempt.
		logger.Info("payment attempt failed", attrs...)
		meter.Count("webhook.router.processed", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	default:
		logger.Info("unhandled Stripe event type")
		meter.Count("webhook.router.unhandled", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	}
}
