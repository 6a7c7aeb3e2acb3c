package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/coupon"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/inventory"
)

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a Address) Validate() error {
	if a.Name == "" || a.Line1 == "" || a.City == "" || a.PostalCode == "" || a.Country == "" {
		return apperr.New(apperr.KindValidation, "shipping address is incomplete")
	}
	return nil
}

type Item struct {
	ID             uuid.UUID         `json:"id"`
	ProductID      uuid.UUID         `json:"product_id"`
	VendorID       uuid.UUID         `json:"vendor_id"`
	Quantity       int               `json:"quantity"`
	UnitPriceMinor int64             `json:"unit_price_minor"`
	Variant        inventory.Variant `json:"variant"`
	IsAvailable    bool              `json:"is_available"`
	AddedAt        time.Time         `json:"added_at"`
	LastStockCheck *time.Time        `json:"last_stock_check_at,omitempty"`

	// Populated summaries for the API response, not persisted on the item.
	ProductName     string `json:"product_name,omitempty"`
	ProductImage    string `json:"product_image,omitempty"`
	VendorStoreName string `json:"vendor_store_name,omitempty"`
}

type AppliedCoupon struct {
	Code      string              `json:"code"`
	Type      coupon.DiscountType `json:"discount_type"`
	Value     decimal.Decimal     `json:"discount_value"`
	AppliedAt time.Time           `json:"applied_at"`
}

// Cart is the mutable pre-purchase aggregate. One active cart per owner.
type Cart struct {
	ID              uuid.UUID       `json:"id"`
	OwnerID         string          `json:"owner_id"`
	Items           []Item          `json:"items"`
	Coupons         []AppliedCoupon `json:"coupons"`
	ShippingAddress *Address        `json:"shipping_address,omitempty"`
	TotalItems      int             `json:"total_items"`
	SubtotalMinor   int64           `json:"subtotal_minor"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// RecomputeTotals derives totals from the current item list. The repository
// calls this on every save so no mutation path can skip it.
func (c *Cart) RecomputeTotals() {
	c.TotalItems = 0
	c.SubtotalMinor = 0
	for _, it := range c.Items {
		c.TotalItems += it.Quantity
		c.SubtotalMinor += it.UnitPriceMinor * int64(it.Quantity)
	}
}

func (c *Cart) DiscountMinor() int64 {
	applied := make([]coupon.Applied, 0, len(c.Coupons))
	for _, ac := range c.Coupons {
		applied = append(applied, coupon.Applied{Type: ac.Type, Value: ac.Value})
	}
	return coupon.ComputeDiscount(c.SubtotalMinor, applied)
}

// FindItem locates a line by its stable identifier.
func (c *Cart) FindItem(itemID uuid.UUID) *Item {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

func (c *Cart) findLine(productID uuid.UUID, v inventory.Variant) *Item {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].Variant == v {
			return &c.Items[i]
		}
	}
	return nil
}

// MergeItem folds qty into an existing (product, variant) line or appends a
// new one. unitPrice is always re-stamped from the current catalog price.
func (c *Cart) MergeItem(productID, vendorID uuid.UUID, v inventory.Variant, qty int, unitPriceMinor int64, now time.Time) *Item {
	if line := c.findLine(productID, v); line != nil {
		line.Quantity += qty
		line.UnitPriceMinor = unitPriceMinor
		line.IsAvailable = true
		return line
	}
	c.Items = append(c.Items, Item{
		ID:             uuid.New(),
		ProductID:      productID,
		VendorID:       vendorID,
		Quantity:       qty,
		UnitPriceMinor: unitPriceMinor,
		Variant:        v,
		IsAvailable:    true,
		AddedAt:        now,
	})
	return &c.Items[len(c.Items)-1]
}

func (c *Cart) RemoveItem(itemID uuid.UUID) bool {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// ApplyCoupon replaces an existing entry with the same code, so the same
// coupon never stacks with itself.
func (c *Cart) ApplyCoupon(ac AppliedCoupon) {
	for i := range c.Coupons {
		if c.Coupons[i].Code == ac.Code {
			c.Coupons[i] = ac
			return
		}
	}
	c.Coupons = append(c.Coupons, ac)
}

func (c *Cart) RemoveCoupon(code string) bool {
	for i := range c.Coupons {
		if c.Coupons[i].Code == code {
			c.Coupons = append(c.Coupons[:i], c.Coupons[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties items and coupons in place; identity and owner survive.
func (c *Cart) Clear() {
	c.Items = nil
	c.Coupons = nil
	c.TotalItems = 0
	c.SubtotalMinor = 0
}
