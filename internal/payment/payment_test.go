package payment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84/webhook"
)

const testVerificationSecret = "verification-secret-123"

type fakeStripe struct {
	server   *httptest.Server
	requests atomic.Int32
}

func newFakeStripe(t *testing.T, handler http.HandlerFunc) *fakeStripe {
	t.Helper()
	f := &fakeStripe{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		handler(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeStripe) gateway(timeout time.Duration) *StripeGateway {
	return NewStripeGateway(Config{
		SecretKey:          "sk_test_123",
		VerificationSecret: testVerificationSecret,
		Currency:           "inr",
		Timeout:            timeout,
		APIURL:             f.server.URL,
	})
}

func writeStripeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func succeededIntent(orderID string) string {
	return fmt.Sprintf(`{"id":"pi_123","object":"payment_intent","amount":110000,"amount_received":110000,
		"currency":"inr","status":"succeeded","latest_charge":"ch_123","metadata":{"order_id":%q}}`, orderID)
}

func TestCreateIntent(t *testing.T) {
	t.Parallel()

	var idempotencyKey, form string
	fake := newFakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payment_intents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		idempotencyKey = r.Header.Get("Idempotency-Key")
		_ = r.ParseForm()
		form = r.PostForm.Encode()
		writeStripeJSON(w, http.StatusOK, `{"id":"pi_123","object":"payment_intent","amount":110000,
			"currency":"inr","client_secret":"pi_123_secret_abc","status":"requires_payment_method","created":1767225600,
			"metadata":{"order_id":"ord-1","receipt":"rcpt_1"}}`)
	})

	intent, err := fake.gateway(time.Second).CreateIntent(context.Background(), IntentParams{
		Amount:   110000,
		Receipt:  "rcpt_1",
		Metadata: map[string]string{MetadataOrderID: "ord-1", MetadataPurpose: PurposeOrderPayment},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret_abc" || intent.Amount != 110000 || intent.Receipt != "rcpt_1" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if idempotencyKey != "rcpt_1" {
		t.Fatalf("expected receipt as idempotency key, got %q", idempotencyKey)
	}
	for _, want := range []string{"amount=110000", "currency=inr", "metadata%5Border_id%5D=ord-1", "metadata%5Breceipt%5D=rcpt_1"} {
		if !strings.Contains(form, want) {
			t.Fatalf("expected form to contain %q, got %q", want, form)
		}
	}
}

func TestCreateIntentValidatesInput(t *testing.T) {
	t.Parallel()

	fake := newFakeStripe(t, func(w http.ResponseWriter, _ *http.Request) {
		writeStripeJSON(w, http.StatusOK, `{}`)
	})
	gateway := fake.gateway(time.Second)

	if _, err := gateway.CreateIntent(context.Background(), IntentParams{Amount: 0, Receipt: "r"}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := gateway.CreateIntent(context.Background(), IntentParams{Amount: 100, Receipt: " "}); !errors.Is(err, ErrMissingReceipt) {
		t.Fatalf("expected ErrMissingReceipt, got %v", err)
	}
	if fake.requests.Load() != 0 {
		t.Fatal("expected no upstream calls for invalid input")
	}
}

func TestCreateIntentErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "duplicate receipt",
			status: http.StatusBadRequest,
			body:   `{"error":{"type":"idempotency_error","message":"Keys for idempotent requests can only be used with the same parameters"}}`,
			want:   ErrDuplicateReceipt,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"type":"api_error","message":"boom"}}`,
			want:   ErrGatewayUnavailable,
		},
		{
			name:   "card declined",
			status: http.StatusPaymentRequired,
			body:   `{"error":{"type":"card_error","message":"declined"}}`,
			want:   ErrGatewayRejected,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := newFakeStripe(t, func(w http.ResponseWriter, _ *http.Request) {
				writeStripeJSON(w, tt.status, tt.body)
			})
			_, err := fake.gateway(time.Second).CreateIntent(context.Background(), IntentParams{Amount: 100, Receipt: "rcpt"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateIntentTimeoutIsUnavailable(t *testing.T) {
	t.Parallel()

	fake := newFakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		writeStripeJSON(w, http.StatusOK, `{}`)
	})

	_, err := fake.gateway(50*time.Millisecond).CreateIntent(context.Background(), IntentParams{Amount: 100, Receipt: "rcpt"})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable on timeout, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	fake := newFakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_123" {
			writeStripeJSON(w, http.StatusNotFound, `{"error":{"type":"invalid_request_error","message":"No such payment_intent"}}`)
			return
		}
		writeStripeJSON(w, http.StatusOK, succeededIntent("ord-1"))
	})
	gateway := fake.gateway(time.Second)

	result, err := gateway.Verify(context.Background(), VerifyPayload{
		IntentID:  "pi_123",
		PaymentID: "ch_123",
		Signature: gateway.Sign("pi_123", "ch_123"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid || result.OrderRef != "ord-1" || result.AmountPaid != 110000 || result.Currency != "inr" {
		t.Fatalf("unexpected verification: %+v", result)
	}

	again, err := gateway.Verify(context.Background(), VerifyPayload{
		IntentID:  "pi_123",
		PaymentID: "ch_123",
		Signature: gateway.Sign("pi_123", "ch_123"),
	})
	if err != nil || again != result {
		t.Fatalf("expected repeated verification to be identical, got %+v %v", again, err)
	}

	unknown, err := gateway.Verify(context.Background(), VerifyPayload{
		IntentID:  "pi_missing",
		PaymentID: "ch_123",
		Signature: gateway.Sign("pi_missing", "ch_123"),
	})
	if err != nil || unknown.Valid {
		t.Fatalf("expected unknown intent to be invalid without error, got %+v %v", unknown, err)
	}

	wrongCharge, err := gateway.Verify(context.Background(), VerifyPayload{
		IntentID:  "pi_123",
		PaymentID: "ch_other",
		Signature: gateway.Sign("pi_123", "ch_other"),
	})
	if err != nil || wrongCharge.Valid {
		t.Fatalf("expected foreign charge to be invalid, got %+v %v", wrongCharge, err)
	}
}

func TestVerifyTamperedSignatureSkipsGateway(t *testing.T) {
	t.Parallel()

	fake := newFakeStripe(t, func(w http.ResponseWriter, _ *http.Request) {
		writeStripeJSON(w, http.StatusOK, succeededIntent("ord-1"))
	})
	gateway := fake.gateway(time.Second)

	signature := []byte(gateway.Sign("pi_123", "ch_123"))
	if signature[0] == 'a' {
		signature[0] = 'b'
	} else {
		signature[0] = 'a'
	}

	for _, sig := range []string{string(signature), "not-hex", ""} {
		result, err := gateway.Verify(context.Background(), VerifyPayload{IntentID: "pi_123", PaymentID: "ch_123", Signature: sig})
		if err != nil {
			t.Fatalf("expected no error for tampered signature, got %v", err)
		}
		if result.Valid {
			t.Fatalf("expected invalid result for signature %q", sig)
		}
	}
	if fake.requests.Load() != 0 {
		t.Fatalf("expected no gateway calls, got %d", fake.requests.Load())
	}
}

func TestVerifyUnsucceededIntentIsInvalid(t *testing.T) {
	t.Parallel()

	fake := newFakeStripe(t, func(w http.ResponseWriter, _ *http.Request) {
		writeStripeJSON(w, http.StatusOK, `{"id":"pi_123","object":"payment_intent","amount":110000,"currency":"inr","status":"processing"}`)
	})
	gateway := fake.gateway(time.Second)

	result, err := gateway.Verify(context.Background(), VerifyPayload{
		IntentID: "pi_123", PaymentID: "ch_123", Signature: gateway.Sign("pi_123", "ch_123"),
	})
	if err != nil || result.Valid {
		t.Fatalf("expected invalid result, got %+v %v", result, err)
	}
}

func TestVerifyGatewayFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	fake := newFakeStripe(t, func(w http.ResponseWriter, _ *http.Request) {
		writeStripeJSON(w, http.StatusServiceUnavailable, `{"error":{"type":"api_error","message":"unavailable"}}`)
	})
	gateway := fake.gateway(time.Second)

	_, err := gateway.Verify(context.Background(), VerifyPayload{
		IntentID: "pi_123", PaymentID: "ch_123", Signature: gateway.Sign("pi_123", "ch_123"),
	})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	fake := newFakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payment_intents/pi_123":
			writeStripeJSON(w, http.StatusOK, `{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret_abc",
				"amount":110000,"amount_received":110000,"currency":"inr","status":"succeeded",
				"latest_charge":{"id":"ch_123","object":"charge"},"metadata":{"order_id":"ord-1"}}`)
		case "/v1/payment_intents/pi_pending":
			writeStripeJSON(w, http.StatusOK, `{"id":"pi_pending","object":"payment_intent","client_secret":"pi_pending_secret",
				"amount":110000,"currency":"inr","status":"requires_action","metadata":{"order_id":"ord-1"}}`)
		default:
			writeStripeJSON(w, http.StatusNotFound, `{"error":{"type":"invalid_request_error","message":"No such payment_intent"}}`)
		}
	})
	gateway := fake.gateway(time.Second)

	tests := []struct {
		name         string
		intentID     string
		clientSecret string
		wantErr      error
	}{
		{name: "succeeded", intentID: "pi_123", clientSecret: "pi_123_secret_abc"},
		{name: "wrong client secret", intentID: "pi_123", clientSecret: "pi_123_secret_guess", wantErr: ErrUnknownIntent},
		{name: "missing client secret", intentID: "pi_123", wantErr: ErrUnknownIntent},
		{name: "not succeeded", intentID: "pi_pending", clientSecret: "pi_pending_secret", wantErr: ErrPaymentIncomplete},
		{name: "unknown intent", intentID: "pi_missing", clientSecret: "pi_missing_secret", wantErr: ErrUnknownIntent},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			confirmation, err := gateway.Confirm(context.Background(), tt.intentID, tt.clientSecret)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if confirmation.PaymentID != "ch_123" || confirmation.OrderRef != "ord-1" {
				t.Fatalf("unexpected confirmation: %+v", confirmation)
			}

			verification, err := gateway.Verify(context.Background(), VerifyPayload{
				IntentID:  confirmation.IntentID,
				PaymentID: confirmation.PaymentID,
				Signature: confirmation.Signature,
			})
			if err != nil || !verification.Valid {
				t.Fatalf("expected confirmation to verify, got %+v %v", verification, err)
			}
		})
	}
}

func TestSignerIsDeterministic(t *testing.T) {
	t.Parallel()

	signer := NewSigner("secret")
	if signer.Sign("a", "b") != signer.Sign("a", "b") {
		t.Fatal("expected deterministic signatures")
	}
	if signer.Sign("a", "b") == signer.Sign("a|b", "") {
		t.Fatal("expected distinct inputs to produce distinct signatures")
	}
	if NewSigner("other").Valid("a", "b", signer.Sign("a", "b")) {
		t.Fatal("expected signature from another secret to be rejected")
	}
}

func TestReadWebhookEventMissingSignature(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(`{}`))
	if _, err := ReadWebhookEvent(req, "whsec_test"); err == nil {
		t.Fatal("expected error for missing signature")
	}
}

func TestReadWebhookEventTooLarge(t *testing.T) {
	t.Parallel()

	body := bytes.Repeat([]byte("a"), MaxWebhookBytes+1)
	tests := []struct {
		name string
		wrap func(w http.ResponseWriter, r *http.Request)
	}{
		{name: "unbounded body", wrap: func(http.ResponseWriter, *http.Request) {}},
		{name: "bounded body", wrap: func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, MaxWebhookBytes)
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
			req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
			tt.wrap(httptest.NewRecorder(), req)

			if _, err := ReadWebhookEvent(req, "whsec_test"); !errors.Is(err, ErrWebhookTooLarge) {
				t.Fatalf("expected ErrWebhookTooLarge, got %v", err)
			}
		})
	}
}

func TestReadWebhookEventAndPaymentFromEvent(t *testing.T) {
	t.Parallel()

	secret := "whsec_test_secret"
	payload := []byte(`{"id":"evt_test","object":"event","api_version":"2026-01-28.clover","type":"payment_intent.succeeded",
		"data":{"object":{"id":"pi_123","object":"payment_intent","amount":110000,"amount_received":110000,
		"currency":"inr","status":"succeeded","latest_charge":"ch_123","metadata":{"order_id":"ord-1"}}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)

	event, err := ReadWebhookEvent(req, secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payment, ok, err := PaymentFromEvent(event)
	if err != nil || !ok {
		t.Fatalf("expected payment, got ok=%v err=%v", ok, err)
	}
	if payment.EventID != "evt_test" || payment.IntentID != "pi_123" || payment.PaymentID != "ch_123" ||
		payment.OrderRef != "ord-1" || payment.AmountPaid != 110000 {
		t.Fatalf("unexpected payment: %+v", payment)
	}
}

func TestPaymentFromEventIgnoresOtherTypes(t *testing.T) {
	t.Parallel()

	if _, ok, err := PaymentFromEvent(nil); ok || err != nil {
		t.Fatalf("expected nil event to be ignored, got %v %v", ok, err)
	}
}
