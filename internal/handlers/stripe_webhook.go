package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/storefrontapp/storefront/internal/cache"
	"github.com/storefrontapp/storefront/internal/observability"
	"github.com/storefrontapp/storefront/internal/payment"
	"github.com/storefrontapp/storefront/internal/services"
)

// stripeWebhookIdempotencyTTL is how long webhook event IDs are kept for deduplication
const stripeWebhookIdempotencyTTL = 24 * time.Hour

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, payment.MaxWebhookBytes)

	event, err := payment.ReadWebhookEvent(r, h.config.StripeWebhookSecret)
	if errors.Is(err, payment.ErrWebhookTooLarge) {
		logger.Error("Stripe webhook payload too large", "error", err)
		http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		logger.Error("failed to read Stripe webhook payload", "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	if event == nil || event.ID == "" {
		logger.Error("missing Stripe event ID")
		http.Error(w, "Missing event ID", http.StatusBadRequest)
		return
	}

	cacheKey := cache.WebhookKey("stripe", event.ID)
	claimed, err := h.cacheProvider.Claim(ctx, cacheKey, stripeWebhookIdempotencyTTL)
	if err != nil {
		// MarkPaid tolerates duplicate delivery.
		logger.Warn("failed to claim webhook event, processing anyway", "event_id", event.ID, "error", err)
		claimed = true
	}
	if !claimed {
		logger.Info("webhook already processed", "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if processErr := h.stripeRouter.Handle(ctx, event); processErr != nil {
		switch {
		case errors.Is(processErr, services.ErrInvalidTransition):
			// Charged for an order that can no longer be paid; left for a manual refund.
			observability.CountReason(ctx, "webhook.stripe.unpayable_order", string(event.Type))
			logger.Error("payment received for an order that cannot be paid", "event_id", event.ID, "type", event.Type, "error", processErr)
			w.WriteHeader(http.StatusOK)
			return
		case errors.Is(processErr, services.ErrValidation), errors.Is(processErr, services.ErrNotFound):
			// Events that reference no usable order are acknowledged and not retried.
			logger.Error("failed to process Stripe webhook", "error", processErr, "type", event.Type)
			w.WriteHeader(http.StatusOK)
			return
		}

		logger.Error("failed to process Stripe webhook", "error", processErr, "type", event.Type)
		if releaseErr := h.cacheProvider.Release(ctx, cacheKey); releaseErr != nil {
			logger.Error("failed to release webhook claim", "event_id", event.ID, "error", releaseErr)
		}
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
