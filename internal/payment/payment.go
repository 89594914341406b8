// Package payment creates payment intents and verifies completed payments
// against Stripe.
package payment

import (
	"errors"
	"time"
)

var (
	ErrInvalidAmount      = errors.New("amount must be a positive integer in the smallest currency unit")
	ErrMissingReceipt     = errors.New("receipt is required")
	ErrDuplicateReceipt   = errors.New("receipt was already used for a different payment attempt")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
	ErrUnknownIntent      = errors.New("unknown payment intent")
	ErrPaymentIncomplete  = errors.New("payment has not completed")
)

const (
	MetadataOrderID   = "order_id"
	MetadataUserID    = "user_id"
	MetadataEmail     = "email"
	MetadataPurpose   = "purpose"
	MetadataCreatedAt = "created_at"
	MetadataReceipt   = "receipt"

	PurposeOrderPayment = "order_payment"
)

// IntentParams describes one payment attempt.
type IntentParams struct {
	Amount   int64
	Currency string
	Receipt  string
	Metadata map[string]string
}

// Intent is the provider handle returned to the client to complete payment.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Receipt      string            `json:"receipt"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// VerifyPayload is what the client submits after completing payment.
type VerifyPayload struct {
	IntentID  string `json:"intent_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required,hexadecimal"`
}

// Confirmation is returned to the shopper after the hosted payment step and
// carries the signature that VerifyPayload expects.
type Confirmation struct {
	IntentID  string `json:"intent_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
	OrderRef  string `json:"-"`
}

// Verification is the outcome of checking a payload. Valid=false is a normal
// result, not an error.
type Verification struct {
	Valid      bool
	Reason     string
	IntentID   string
	PaymentID  string
	OrderRef   string
	AmountPaid int64
	Currency   string
}

func invalid(reason string) Verification {
	return Verification{Valid: false, Reason: reason}
}
