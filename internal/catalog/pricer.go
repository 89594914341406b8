package catalog

import (
	"fmt"

	"github.com/storefrontapp/storefront/internal/models"
)

const basisPointsDenominator = 10_000

// Quote is the price breakdown of an order, in the smallest currency unit.
type Quote struct {
	ItemsPrice    int64 `json:"items_price"`
	ShippingPrice int64 `json:"shipping_price"`
	TaxPrice      int64 `json:"tax_price"`
	TotalPrice    int64 `json:"total_price"`
}

type PricerConfig struct {
	ShippingFlatRate      int64
	FreeShippingThreshold int64
	TaxRateBasisPoints    int64
}

// Pricer charges a flat shipping rate that is waived when the items price
// exceeds the threshold, and tax on the items price rounded half up.
type Pricer struct {
	cfg PricerConfig
}

func NewPricer(cfg PricerConfig) *Pricer {
	return &Pricer{cfg: cfg}
}

func (p *Pricer) Quote(items []models.OrderItem) (Quote, error) {
	var itemsPrice int64
	for i, item := range items {
		if item.Quantity < 1 {
			return Quote{}, fmt.Errorf("item %d quantity must be at least 1", i)
		}
		if item.UnitPrice < 0 {
			return Quote{}, fmt.Errorf("item %d unit price must be non-negative", i)
		}
		itemsPrice += item.LineTotal()
	}

	shipping := p.cfg.ShippingFlatRate
	if p.cfg.FreeShippingThreshold > 0 && itemsPrice > p.cfg.FreeShippingThreshold {
		shipping = 0
	}

	tax := (itemsPrice*p.cfg.TaxRateBasisPoints + basisPointsDenominator/2) / basisPointsDenominator

	return Quote{
		ItemsPrice:    itemsPrice,
		ShippingPrice: shipping,
		TaxPrice:      tax,
		TotalPrice:    itemsPrice + shipping + tax,
	}, nil
}

// Apply copies the quote onto an order.
func (q Quote) Apply(order *models.Order) {
	order.ItemsPrice = q.ItemsPrice
	order.ShippingPrice = q.ShippingPrice
	order.TaxPrice = q.TaxPrice
	order.TotalPrice = q.TotalPrice
}
