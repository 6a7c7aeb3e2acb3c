package orders

// PricingPolicy holds the checkout money rules. Tax applies to the
// discounted subtotal; the cart preview and the order use this same code.
type PricingPolicy struct {
	TaxRateBasisPoints    int64
	ShippingFeeMinor      int64
	FreeShippingThreshold int64
}

// Tax rounds half away from zero to whole minor units.
func (p PricingPolicy) Tax(discountedSubtotalMinor int64) int64 {
	if discountedSubtotalMinor <= 0 {
		return 0
	}
	return (discountedSubtotalMinor*p.TaxRateBasisPoints + 5000) / 10000
}

// Shipping is threshold-based on the pre-discount subtotal.
func (p PricingPolicy) Shipping(subtotalMinor int64) int64 {
	if subtotalMinor >= p.FreeShippingThreshold {
		return 0
	}
	return p.ShippingFeeMinor
}

type Totals struct {
	SubtotalMinor int64 `json:"subtotal_minor"`
	DiscountMinor int64 `json:"discount_minor"`
	TaxMinor      int64 `json:"tax_minor"`
	ShippingMinor int64 `json:"shipping_minor"`
	TotalMinor    int64 `json:"total_minor"`
}

// Compute derives the full money breakdown for a subtotal+discount pair.
// Discount is assumed already clamped to [0, subtotal] by the coupon engine.
func (p PricingPolicy) Compute(subtotalMinor, discountMinor int64) Totals {
	tax := p.Tax(subtotalMinor - discountMinor)
	shipping := p.Shipping(subtotalMinor)
	return Totals{
		SubtotalMinor: subtotalMinor,
		DiscountMinor: discountMinor,
		TaxMinor:      tax,
		ShippingMinor: shipping,
		TotalMinor:    subtotalMinor + tax + shipping - discountMinor,
	}
}
