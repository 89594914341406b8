package db

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/storefrontapp/storefront/internal/models"
)

func TestNewPage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		number, size int
		max          int
		want         Page
		wantOffset   int
	}{
		{name: "defaults", number: 0, size: 0, max: 50, want: Page{Number: 1, Size: 50}},
		{name: "explicit", number: 3, size: 10, max: 50, want: Page{Number: 3, Size: 10}, wantOffset: 20},
		{name: "capped", number: 1, size: 500, max: 50, want: Page{Number: 1, Size: 50}},
		{name: "negative", number: -2, size: -5, max: 20, want: Page{Number: 1, Size: 20}},
		{name: "no max", number: 2, size: 0, max: 0, want: Page{Number: 2, Size: 50}, wantOffset: 50},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NewPage(tt.number, tt.size, tt.max)
			if got != tt.want {
				t.Fatalf("NewPage() = %+v, want %+v", got, tt.want)
			}
			if got.Offset() != tt.wantOffset {
				t.Fatalf("Offset() = %d, want %d", got.Offset(), tt.wantOffset)
			}
		})
	}
}

func TestTransitionStatement(t *testing.T) {
	t.Parallel()

	shipped, err := transitionStatement(models.StatusShipped)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(shipped, "status IN ('processing')") || !strings.Contains(shipped, "is_paid = TRUE") {
		t.Fatalf("shipped statement missing guard: %s", shipped)
	}

	cancelled, err := transitionStatement(models.StatusCancelled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(cancelled, "status IN ('processing', 'shipped')") || strings.Contains(cancelled, "AND is_paid = TRUE") {
		t.Fatalf("unexpected cancelled statement: %s", cancelled)
	}

	delivered, err := transitionStatement(models.StatusDelivered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(delivered, "status IN ('shipped')") || !strings.Contains(delivered, "delivered_at = NOW()") {
		t.Fatalf("unexpected delivered statement: %s", delivered)
	}

	if _, err := transitionStatement(models.StatusProcessing); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for processing, got %v", err)
	}
}

func TestRejectedTransition(t *testing.T) {
	t.Parallel()

	unpaid := &Order{Status: models.StatusProcessing}
	err := rejectedTransition(unpaid, models.StatusShipped)
	if !errors.Is(err, ErrInvalidTransition) || !strings.Contains(err.Error(), "must be paid") {
		t.Fatalf("unexpected error: %v", err)
	}

	delivered := &Order{Status: models.StatusDelivered, IsPaid: true}
	err = rejectedTransition(delivered, models.StatusCancelled)
	if !errors.Is(err, ErrInvalidTransition) || !strings.Contains(err.Error(), "delivered -> cancelled") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateNewOrder(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	valid := func() *Order {
		return &Order{
			UserID: "user-1",
			Items: []models.OrderItem{
				{ProductID: productID, Title: "Kurta", Quantity: 1, UnitPrice: 100000},
			},
			ItemsPrice:    100000,
			ShippingPrice: 5000,
			TaxPrice:      5000,
			TotalPrice:    110000,
			ShippingAddress: models.Address{
				FullName: "Asha Rao", Line1: "12 MG Road", City: "Pune",
				State: "MH", PostalCode: "411001", Country: "IN",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(o *Order)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Order) {}},
		{name: "no owner", mutate: func(o *Order) { o.UserID = " " }, wantErr: true},
		{name: "no items", mutate: func(o *Order) { o.Items = nil; o.ItemsPrice = 0; o.TotalPrice = 10000 }, wantErr: true},
		{name: "zero quantity", mutate: func(o *Order) { o.Items[0].Quantity = 0 }, wantErr: true},
		{name: "nil product", mutate: func(o *Order) { o.Items[0].ProductID = uuid.Nil }, wantErr: true},
		{name: "total mismatch", mutate: func(o *Order) { o.TotalPrice = 1 }, wantErr: true},
		{name: "incomplete address", mutate: func(o *Order) { o.ShippingAddress.City = "" }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			order := valid()
			tt.mutate(order)
			err := validateNewOrder(order)
			if tt.wantErr && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestDistinctProductIDs(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	ids := distinctProductIDs([]models.OrderItem{{ProductID: a}, {ProductID: b}, {ProductID: a}})
	if len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestQueryTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		want  string
	}{
		{"SELECT id FROM orders WHERE id = $1", "orders"},
		{"INSERT INTO push_subscriptions (user_id) VALUES ($1)", "push_subscriptions"},
		{"UPDATE orders SET status = 'shipped'", "orders"},
		{"DELETE FROM push_subscriptions WHERE endpoint = $1", "push_subscriptions"},
		{"CREATE TABLE x ()", ""},
	}

	for _, tt := range tests {
		query := normalizeQuery(tt.query)
		if got := queryTable(query, queryOperation(query)); got != tt.want {
			t.Fatalf("queryTable(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}
