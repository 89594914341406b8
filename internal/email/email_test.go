package email

import (
	"strings"
	"testing"
	"time"

	"github.com/storefrontapp/storefront/internal/models"
)

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		minor    int64
		currency string
		want     string
	}{
		{110000, "inr", "₹1,100.00"},
		{5, "inr", "₹0.05"},
		{123456789, "usd", "$1,234,567.89"},
		{-2500, "eur", "-€25.00"},
		{1999, "jpy", "JPY 19.99"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.minor, tt.currency); got != tt.want {
			t.Fatalf("FormatAmount(%d, %s) = %q, want %q", tt.minor, tt.currency, got, tt.want)
		}
	}
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	provider, err := NewProvider(Config{})
	if err != nil || provider != nil {
		t.Fatalf("expected disabled provider, got %v, %v", provider, err)
	}

	provider, err = NewProvider(Config{Provider: "Resend", APIKey: "re_123", From: "orders@example.com"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := provider.(*ResendProvider); !ok {
		t.Fatalf("expected resend provider, got %T", provider)
	}

	if _, err := NewProvider(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestRenderPaymentReceived(t *testing.T) {
	t.Parallel()

	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	info := BuildOrderInfo(testOrder(), "Storefront", "https://shop.example.com", time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	msg, err := renderer.Render(TemplatePaymentReceived, info)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if msg.To != "asha@example.com" {
		t.Fatalf("unexpected recipient %q", msg.To)
	}
	if msg.Subject != "Payment received for order #42" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{"Kurta (M / Blue) x2: ₹800.00", "Total: ₹1,100.00", "March 4, 2026", "Pune, MH, 411001"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("text body missing %q:\n%s", want, msg.Text)
		}
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatalf("HTML body must escape customer input:\n%s", msg.HTML)
	}
	if !strings.Contains(msg.HTML, "&lt;script&gt;") {
		t.Fatalf("expected escaped name in HTML body")
	}
}

func TestRenderStatusTemplates(t *testing.T) {
	t.Parallel()

	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	info := BuildOrderInfo(testOrder(), "Storefront", "https://shop.example.com", time.Now())

	tests := []struct {
		name    string
		subject string
		body    string
	}{
		{TemplateOrderShipped, "Order #42 has shipped", "on its way"},
		{TemplateOrderDelivered, "Order #42 was delivered", "has been delivered"},
		{TemplateOrderCancelled, "Order #42 was cancelled", "has been cancelled"},
	}

	for _, tt := range tests {
		msg, err := renderer.Render(tt.name, info)
		if err != nil {
			t.Fatalf("Render(%s): %v", tt.name, err)
		}
		if msg.Subject != tt.subject || !strings.Contains(msg.Text, tt.body) {
			t.Fatalf("unexpected %s email: %q\n%s", tt.name, msg.Subject, msg.Text)
		}
	}

	if _, err := renderer.Render("unknown", info); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func testOrder() *models.Order {
	return &models.Order{
		OrderNumber:   42,
		CustomerEmail: "asha@example.com",
		CustomerName:  "Asha <script>",
		Items: []models.OrderItem{
			{Title: "Kurta", Size: "M", Color: "Blue", Quantity: 2, UnitPrice: 40000},
			{Title: "Scarf", Quantity: 1, UnitPrice: 20000},
		},
		ItemsPrice:    100000,
		ShippingPrice: 5000,
		TaxPrice:      5000,
		TotalPrice:    110000,
		Currency:      "inr",
		ShippingAddress: models.Address{
			FullName:   "Asha Rao",
			Line1:      "12 MG Road",
			City:       "Pune",
			State:      "MH",
			PostalCode: "411001",
			Country:    "IN",
		},
	}
}
