package payment

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/storefrontapp/storefront/internal/observability"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	SecretKey          string
	VerificationSecret string
	Currency           string
	Timeout            time.Duration
	// APIURL overrides the Stripe API base URL.
	APIURL string
}

// StripeGateway talks to the PaymentIntents API. Every call is bounded by
// the configured timeout and a timeout is reported as ErrGatewayUnavailable.
type StripeGateway struct {
	client   *stripe.Client
	signer   Signer
	currency string
	timeout  time.Duration
	now      func() time.Time
}

func NewStripeGateway(cfg Config) *StripeGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        observability.NewHTTPClient(timeout),
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIURL != "" {
		backendConfig.URL = stripe.String(cfg.APIURL)
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "inr"
	}

	return &StripeGateway{
		client:   stripe.NewClient(cfg.SecretKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendConfig))),
		signer:   NewSigner(cfg.VerificationSecret),
		currency: currency,
		timeout:  timeout,
		now:      time.Now,
	}
}

// CreateIntent registers a pending charge. The receipt doubles as the
// idempotency key, so replaying an attempt returns the same intent while
// reusing a receipt with different parameters fails with ErrDuplicateReceipt.
func (g *StripeGateway) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	if params.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	receipt := strings.TrimSpace(params.Receipt)
	if receipt == "" {
		return nil, ErrMissingReceipt
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = g.currency
	}

	metadata := make(map[string]string, len(params.Metadata)+2)
	for k, v := range params.Metadata {
		metadata[k] = v
	}
	metadata[MetadataReceipt] = receipt
	if _, ok := metadata[MetadataCreatedAt]; !ok {
		metadata[MetadataCreatedAt] = strconv.FormatInt(g.now().Unix(), 10)
	}

	createParams := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(params.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: metadata,
	}
	createParams.SetIdempotencyKey(receipt)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	pi, err := g.client.V1PaymentIntents.Create(ctx, createParams)
	if err != nil {
		return nil, classifyError("create payment intent", err)
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Receipt:      receipt,
		Metadata:     pi.Metadata,
		CreatedAt:    time.Unix(pi.Created, 0).UTC(),
	}, nil
}

// Verify checks the confirmation signature locally, then confirms with the
// provider that the intent succeeded. It never mutates provider state.
func (g *StripeGateway) Verify(ctx context.Context, payload VerifyPayload) (Verification, error) {
	if payload.IntentID == "" || payload.PaymentID == "" || payload.Signature == "" {
		return invalid("incomplete payload"), nil
	}
	if !g.signer.Valid(payload.IntentID, payload.PaymentID, payload.Signature) {
		return invalid("signature mismatch"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentRetrieveParams{}
	params.AddExpand("latest_charge")
	pi, err := g.client.V1PaymentIntents.Retrieve(ctx, payload.IntentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return invalid("unknown payment intent"), nil
		}
		return Verification{}, classifyError("retrieve payment intent", err)
	}

	return verificationFromIntent(pi, payload.PaymentID), nil
}

// Sign returns the confirmation signature for an intent and its charge.
func (g *StripeGateway) Sign(intentID, paymentID string) string {
	return g.signer.Sign(intentID, paymentID)
}

// Confirm is called when the shopper returns from the payment page. The
// client secret proves the caller holds the intent; the intent must have
// succeeded before a signature is issued.
func (g *StripeGateway) Confirm(ctx context.Context, intentID, clientSecret string) (*Confirmation, error) {
	intentID = strings.TrimSpace(intentID)
	clientSecret = strings.TrimSpace(clientSecret)
	if intentID == "" || clientSecret == "" {
		return nil, ErrUnknownIntent
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentRetrieveParams{}
	params.AddExpand("latest_charge")
	pi, err := g.client.V1PaymentIntents.Retrieve(ctx, intentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, ErrUnknownIntent
		}
		return nil, classifyError("retrieve payment intent", err)
	}
	if pi == nil || subtle.ConstantTimeCompare([]byte(pi.ClientSecret), []byte(clientSecret)) != 1 {
		return nil, ErrUnknownIntent
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded || pi.LatestCharge == nil || pi.LatestCharge.ID == "" {
		return nil, fmt.Errorf("%w: intent status %s", ErrPaymentIncomplete, pi.Status)
	}

	return &Confirmation{
		IntentID:  pi.ID,
		PaymentID: pi.LatestCharge.ID,
		Signature: g.signer.Sign(pi.ID, pi.LatestCharge.ID),
		OrderRef:  pi.Metadata[MetadataOrderID],
	}, nil
}

func verificationFromIntent(pi *stripe.PaymentIntent, paymentID string) Verification {
	if pi == nil {
		return invalid("empty payment intent")
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return invalid("payment intent status " + string(pi.Status))
	}
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" && pi.LatestCharge.ID != paymentID {
		return invalid("payment does not belong to intent")
	}

	return Verification{
		Valid:      true,
		IntentID:   pi.ID,
		PaymentID:  paymentID,
		OrderRef:   pi.Metadata[MetadataOrderID],
		AmountPaid: pi.AmountReceived,
		Currency:   string(pi.Currency),
	}
}

func classifyError(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
	}

	switch {
	case stripeErr.Type == stripe.ErrorTypeIdempotency:
		return fmt.Errorf("%w: %s", ErrDuplicateReceipt, stripeErr.Msg)
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.Type == stripe.ErrorTypeAPI:
		return fmt.Errorf("%w: %s: %s", ErrGatewayUnavailable, op, stripeErr.Msg)
	default:
		return fmt.Errorf("%w: %s: %s", ErrGatewayRejected, op, stripeErr.Msg)
	}
}
