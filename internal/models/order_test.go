package models

import (
	"errors"
	"slices"
	"testing"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	all := []OrderStatus{StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}
	allowed := map[[2]OrderStatus]bool{
		{StatusProcessing, StatusShipped}:   true,
		{StatusProcessing, StatusCancelled}: true,
		{StatusShipped, StatusDelivered}:    true,
		{StatusShipped, StatusCancelled}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]OrderStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTransitionSources(t *testing.T) {
	t.Parallel()

	tests := []struct {
		to   OrderStatus
		want []OrderStatus
	}{
		{StatusShipped, []OrderStatus{StatusProcessing}},
		{StatusDelivered, []OrderStatus{StatusShipped}},
		{StatusCancelled, []OrderStatus{StatusProcessing, StatusShipped}},
		{StatusProcessing, nil},
	}

	for _, tt := range tests {
		got := TransitionSources(tt.to)
		if !slices.Equal(got, tt.want) {
			t.Fatalf("TransitionSources(%s) = %v, want %v", tt.to, got, tt.want)
		}
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	t.Parallel()

	if StatusProcessing.IsTerminal() || StatusShipped.IsTerminal() {
		t.Fatal("processing and shipped must not be terminal")
	}
	if !StatusDelivered.IsTerminal() || !StatusCancelled.IsTerminal() {
		t.Fatal("delivered and cancelled must be terminal")
	}
}

func TestParseOrderStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseOrderStatus(" Shipped ")
	if err != nil || status != StatusShipped {
		t.Fatalf("unexpected result: %v %v", status, err)
	}
	if _, err := ParseOrderStatus("refunded"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestParsePaymentMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		want    PaymentMethod
		wantErr bool
	}{
		{name: "default", value: "", want: PaymentMethodCard},
		{name: "upi", value: "UPI", want: PaymentMethodUPI},
		{name: "unknown", value: "barter", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePaymentMethod(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestValidatePricing(t *testing.T) {
	t.Parallel()

	base := func() *Order {
		return &Order{
			Items: []OrderItem{
				{Title: "Kurta", Quantity: 2, UnitPrice: 40000},
				{Title: "Scarf", Quantity: 1, UnitPrice: 20000},
			},
			ItemsPrice:    100000,
			ShippingPrice: 5000,
			TaxPrice:      5000,
			TotalPrice:    110000,
		}
	}

	tests := []struct {
		name   string
		mutate func(o *Order)
		want   error
	}{
		{name: "valid", mutate: func(*Order) {}},
		{name: "total mismatch", mutate: func(o *Order) { o.TotalPrice = 109999 }, want: ErrPriceMismatch},
		{name: "negative tax", mutate: func(o *Order) { o.TaxPrice = -1; o.TotalPrice = 104999 }, want: ErrNegativePrice},
		{name: "items drift", mutate: func(o *Order) { o.Items[0].UnitPrice = 1 }, want: ErrItemsPriceDrift},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			order := base()
			tt.mutate(order)
			err := order.ValidatePricing()
			if tt.want == nil && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAddressMissingFields(t *testing.T) {
	t.Parallel()

	addr := Address{FullName: "Asha Rao", Line1: "12 MG Road", City: "Pune", Country: "IN"}
	missing := addr.MissingFields()
	if !slices.Equal(missing, []string{"state", "postal_code"}) {
		t.Fatalf("unexpected missing fields: %v", missing)
	}
	if err := addr.Validate(); err == nil {
		t.Fatal("expected validation error")
	}

	addr.State = "MH"
	addr.PostalCode = "411001"
	if err := addr.Validate(); err != nil {
		t.Fatalf("expected complete address, got %v", err)
	}
}

func TestOrderSummary(t *testing.T) {
	t.Parallel()

	order := &Order{
		CustomerName: "Asha",
		Items:        []OrderItem{{Quantity: 2}, {Quantity: 3}},
		TotalPrice:   110000,
		Currency:     "inr",
		Status:       StatusProcessing,
	}
	summary := order.Summary()
	if summary.ItemCount != 5 || summary.TotalPrice != 110000 || summary.CustomerName != "Asha" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
