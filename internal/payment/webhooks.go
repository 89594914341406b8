package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const (
	// MaxWebhookBytes bounds a webhook body. Stripe events stay well below it.
	MaxWebhookBytes = 1 << 20

	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

var ErrWebhookTooLarge = errors.New("webhook body too large")

// WebhookPayment is a successful payment reported by a gateway callback.
type WebhookPayment struct {
	EventID    string
	IntentID   string
	PaymentID  string
	OrderRef   string
	AmountPaid int64
	Currency   string
}

func ReadWebhookEvent(r *http.Request, secret string) (*stripe.Event, error) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		return nil, fmt.Errorf("missing stripe signature header")
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBytes+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("%w: limit %d bytes", ErrWebhookTooLarge, maxErr.Limit)
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(payload) > MaxWebhookBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrWebhookTooLarge, MaxWebhookBytes)
	}

	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature validation failed: %w", err)
	}

	return &event, nil
}

// PaymentFromEvent extracts the succeeded payment from a
// payment_intent.succeeded event. ok is false for every other event type.
func PaymentFromEvent(event *stripe.Event) (WebhookPayment, bool, error) {
	if event == nil || string(event.Type) != EventPaymentSucceeded || event.Data == nil {
		return WebhookPayment{}, false, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return WebhookPayment{}, false, fmt.Errorf("failed to decode payment intent: %w", err)
	}

	payment := WebhookPayment{
		EventID:    event.ID,
		IntentID:   pi.ID,
		OrderRef:   pi.Metadata[MetadataOrderID],
		AmountPaid: pi.AmountReceived,
		Currency:   string(pi.Currency),
	}
	if pi.LatestCharge != nil {
		payment.PaymentID = pi.LatestCharge.ID
	}
	return payment, true, nil
}
