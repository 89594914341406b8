package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

func ParseOrderStatus(value string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("unknown order status %q", value)
	}
}

// IsTerminal reports whether no further transition can leave the status.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether the state machine allows moving from one
// status to another. Payment guards are enforced separately.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case StatusProcessing:
		return to == StatusShipped || to == StatusCancelled
	case StatusShipped:
		return to == StatusDelivered || to == StatusCancelled
	default:
		return false
	}
}

// TransitionSources lists every status from which the target is reachable.
func TransitionSources(to OrderStatus) []OrderStatus {
	var sources []OrderStatus
	for _, from := range []OrderStatus{StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled} {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

type PaymentMethod string

const (
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodNetBanking PaymentMethod = "netbanking"
)

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(value)))
	switch method {
	case PaymentMethodCard, PaymentMethodUPI, PaymentMethodNetBanking:
		return method, nil
	case "":
		return PaymentMethodCard, nil
	default:
		return "", fmt.Errorf("unsupported payment method %q", value)
	}
}

type OrderItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Title     string    `json:"title"`
	Size      string    `json:"size,omitempty"`
	Color     string    `json:"color,omitempty"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
}

func (i OrderItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

type Address struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// MissingFields returns the names of required address fields that are blank.
func (a Address) MissingFields() []string {
	required := []struct {
		name  string
		value string
	}{
		{"full_name", a.FullName},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	}

	var missing []string
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

func (a Address) Validate() error {
	if missing := a.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("shipping address incomplete: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type Order struct {
	ID              uuid.UUID     `json:"id"`
	OrderNumber     int           `json:"order_number"`
	UserID          string        `json:"user_id"`
	CustomerEmail   string        `json:"customer_email"`
	CustomerName    string        `json:"customer_name"`
	Items           []OrderItem   `json:"items"`
	ItemsPrice      int64         `json:"items_price"`
	ShippingPrice   int64         `json:"shipping_price"`
	TaxPrice        int64         `json:"tax_price"`
	TotalPrice      int64         `json:"total_price"`
	Currency        string        `json:"currency"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	IsPaid          bool          `json:"is_paid"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	PaymentID       string        `json:"payment_id,omitempty"`
	Status          OrderStatus   `json:"status"`
	ShippingAddress Address       `json:"shipping_address"`
	CreatedAt       time.Time     `json:"created_at"`
	PaidAt          time.Time     `json:"paid_at"`
	ShippedAt       time.Time     `json:"shipped_at"`
	DeliveredAt     time.Time     `json:"delivered_at"`
	CancelledAt     time.Time     `json:"cancelled_at"`
}

var (
	ErrNegativePrice   = errors.New("prices must be non-negative")
	ErrPriceMismatch   = errors.New("total price does not equal items + shipping + tax")
	ErrItemsPriceDrift = errors.New("items price does not equal the sum of line items")
)

// ValidatePricing checks the pricing invariant of the order.
func (o *Order) ValidatePricing() error {
	if o.ItemsPrice < 0 || o.ShippingPrice < 0 || o.TaxPrice < 0 || o.TotalPrice < 0 {
		return ErrNegativePrice
	}
	if o.TotalPrice != o.ItemsPrice+o.ShippingPrice+o.TaxPrice {
		return ErrPriceMismatch
	}
	var sum int64
	for _, item := range o.Items {
		sum += item.LineTotal()
	}
	if sum != o.ItemsPrice {
		return ErrItemsPriceDrift
	}
	return nil
}

func (o *Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}

// OrderSummary is the compact view sent to admin notification channels.
type OrderSummary struct {
	ID            uuid.UUID   `json:"id"`
	OrderNumber   int         `json:"order_number"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	ItemCount     int         `json:"item_count"`
	Items         []OrderItem `json:"items"`
	TotalPrice    int64       `json:"total_price"`
	Currency      string      `json:"currency"`
	IsPaid        bool        `json:"is_paid"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
}

func (o *Order) Summary() OrderSummary {
	return OrderSummary{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		ItemCount:     o.ItemCount(),
		Items:         o.Items,
		TotalPrice:    o.TotalPrice,
		Currency:      o.Currency,
		IsPaid:        o.IsPaid,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
	}
}
