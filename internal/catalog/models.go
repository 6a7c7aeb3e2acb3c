package catalog

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID         uuid.UUID
	VendorID   uuid.UUID
	Name       string
	Category   string
	Images     []string
	PriceMinor int64 // minor units, snapshot source of truth for pricing
	Currency   string
	IsActive   bool
	IsApproved bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Purchasable reports whether the product may enter a cart at all.
func (p Product) Purchasable() bool { return p.IsActive && p.IsApproved }

type Vendor struct {
	ID        uuid.UUID
	ShopID    uuid.UUID
	Name      string
	StoreName string
	Location  string
}
