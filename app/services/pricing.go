package services

import (
	"math"

	"github.com/ourstore/storefront/config"
)

// Pricing holds the checkout constants. Money is computed in integer cents
// so that rounding is exact.
type Pricing struct {
	// FreeShippingAbove: subtotals strictly greater than this ship free.
	FreeShippingAbove float64
	FlatShippingFee   float64
	TaxRate           float64
}

// Totals are the computed amounts of an order.
type Totals struct {
	Subtotal    float64 `json:"subtotal"`
	ShippingFee float64 `json:"shippingFee"`
	Tax         float64 `json:"tax"`
	Total       float64 `json:"total"`
}

// DefaultPricing reads the constants from config.
func DefaultPricing() Pricing {
	return Pricing{
		FreeShippingAbove: config.ShippingFreeThreshold(),
		FlatShippingFee:   config.ShippingFlatFee(),
		TaxRate:           config.TaxRate(),
	}
}

// ToCents converts an amount to whole cents, rounding half away from zero.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(c int64) float64 { return float64(c) / 100 }

// LineCents is unit price × quantity in cents.
func LineCents(unitPrice float64, qty int) int64 {
	return ToCents(unitPrice) * int64(qty)
}

// taxCents is subtotal × rate rounded half-up on the cent. The rate is
// applied in hundredths of a basis point so typical rates stay exact.
func (p Pricing) taxCents(subtotal int64) int64 {
	rate := int64(math.Round(p.TaxRate * 1_000_000))
	product := subtotal * rate
	return (product + 500_000) / 1_000_000
}

// Compute derives shipping, tax and total from a subtotal in cents.
func (p Pricing) Compute(subtotal int64) Totals {
	shipping := ToCents(p.FlatShippingFee)
	if subtotal > ToCents(p.FreeShippingAbove) {
		shipping = 0
	}
	tax := p.taxCents(subtotal)
	return Totals{
		Subtotal:    fromCents(subtotal),
		ShippingFee: fromCents(shipping),
		Tax:         fromCents(tax),
		Total:       fromCents(subtotal + shipping + tax),
	}
}
