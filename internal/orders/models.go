package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/cart"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/inventory"
)

// ProductSnapshot freezes the catalog data a line was bought under.
type ProductSnapshot struct {
	Name     string            `json:"name"`
	Images   []string          `json:"images,omitempty"`
	Category string            `json:"category,omitempty"`
	Variant  inventory.Variant `json:"variant"`
}

type VendorSnapshot struct {
	Name      string `json:"name"`
	StoreName string `json:"store_name"`
	Location  string `json:"location,omitempty"`
}

type OrderItem struct {
	ID             uuid.UUID         `json:"id"`
	OrderID        uuid.UUID         `json:"order_id"`
	ProductID      uuid.UUID         `json:"product_id"`
	VendorID       uuid.UUID         `json:"vendor_id"`
	ShopID         uuid.UUID         `json:"shop_id"`
	Quantity       int               `json:"quantity"`
	UnitPriceMinor int64             `json:"unit_price_minor"`
	Variant        inventory.Variant `json:"variant"`
	Product        ProductSnapshot   `json:"product_snapshot"`
	Vendor         VendorSnapshot    `json:"vendor_snapshot"`
	Status         Status            `json:"status"`

	TrackingNumber  string `json:"tracking_number,omitempty"`
	TrackingCarrier string `json:"tracking_carrier,omitempty"`

	RefundAmountMinor int64      `json:"refund_amount_minor"`
	RefundReason      string     `json:"refund_reason,omitempty"`
	RefundedAt        *time.Time `json:"refunded_at,omitempty"`
}

func (it OrderItem) LineTotalMinor() int64 { return it.UnitPriceMinor * int64(it.Quantity) }

// RefundableMinor is what can still be refunded for this line.
func (it OrderItem) RefundableMinor() int64 { return it.LineTotalMinor() - it.RefundAmountMinor }

// VendorOrderGroup partitions the order per seller so each vendor can
// fulfill independently while the parent stays the customer-facing unit.
type VendorOrderGroup struct {
	VendorID      uuid.UUID `json:"vendor_id"`
	ShopID        uuid.UUID `json:"shop_id"`
	SubtotalMinor int64     `json:"subtotal_minor"`
	Status        Status    `json:"status"`
	Items         []int     `json:"-"` // indexes into Order.Items, rebuilt on load
}

// StatusHistoryEntry is append-only; nothing edits or removes entries.
type StatusHistoryEntry struct {
	Status    Status    `json:"status"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Order struct {
	ID          uuid.UUID `json:"id"`
	OrderNumber string    `json:"order_number"`
	CustomerID  string    `json:"customer_id"`
	IntentID    string    `json:"intent_id"`

	Items        []OrderItem        `json:"items"`
	VendorGroups []VendorOrderGroup `json:"vendor_groups"`

	SubtotalMinor int64  `json:"subtotal_minor"`
	TaxMinor      int64  `json:"tax_minor"`
	ShippingMinor int64  `json:"shipping_minor"`
	DiscountMinor int64  `json:"discount_minor"`
	TotalMinor    int64  `json:"total_minor"`
	Currency      string `json:"currency"`

	Status         Status        `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	PaymentMethod  string        `json:"payment_method"`
	PaymentGateway string        `json:"payment_gateway"`
	TransactionID  string        `json:"transaction_id"`

	ShippingAddress cart.Address         `json:"shipping_address"`
	StatusHistory   []StatusHistoryEntry `json:"status_history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) FindItem(itemID uuid.UUID) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

func (o *Order) findGroup(vendorID uuid.UUID) *VendorOrderGroup {
	for i := range o.VendorGroups {
		if o.VendorGroups[i].VendorID == vendorID {
			return &o.VendorGroups[i]
		}
	}
	return nil
}

// RebuildGroupIndexes repairs the group->item index view after loading.
func (o *Order) RebuildGroupIndexes() {
	for g := range o.VendorGroups {
		o.VendorGroups[g].Items = nil
	}
	for i := range o.Items {
		if g := o.findGroup(o.Items[i].VendorID); g != nil {
			g.Items = append(g.Items, i)
		}
	}
}

func (o *Order) appendHistory(e StatusHistoryEntry) {
	o.StatusHistory = append(o.StatusHistory, e)
}

// RestockLine names stock to hand back when a line is cancelled/refunded.
type RestockLine struct {
	ProductID uuid.UUID
	Variant   inventory.Variant
	Qty       int
}

// ApplyTransition moves the whole order to a new status, appending history.
// A cancellation cascades to every item and group that is not yet terminal
// and reports which lines need their stock restored.
func ApplyTransition(o *Order, to Status, e StatusHistoryEntry) ([]RestockLine, error) {
	if !CanTransition(o.Status, to) {
		return nil, apperr.Newf(apperr.KindValidation, "cannot transition order from %s to %s", o.Status, to)
	}

	o.Status = to
	e.Status = to
	o.appendHistory(e)
	o.UpdatedAt = e.CreatedAt

	var restock []RestockLine
	if to == StatusCancelled {
		for i := range o.Items {
			it := &o.Items[i]
			if IsTerminal(it.Status) {
				continue
			}
			it.Status = StatusCancelled
			restock = append(restock, RestockLine{ProductID: it.ProductID, Variant: it.Variant, Qty: it.Quantity})
		}
		for g := range o.VendorGroups {
			if !IsTerminal(o.VendorGroups[g].Status) {
				o.VendorGroups[g].Status = StatusCancelled
			}
		}
	}
	return restock, nil
}

// ApplyItemTransition moves one line and refreshes the owning vendor group.
func ApplyItemTransition(o *Order, itemID uuid.UUID, to Status, e StatusHistoryEntry) (*OrderItem, error) {
	it := o.FindItem(itemID)
	if it == nil {
		return nil, apperr.New(apperr.KindNotFound, "order item not found")
	}
	if !CanTransition(it.Status, to) {
		return nil, apperr.Newf(apperr.KindValidation, "cannot transition item from %s to %s", it.Status, to)
	}

	it.Status = to
	o.UpdatedAt = e.CreatedAt
	e.Status = to
	e.Note = "item " + itemID.String() + ": " + e.Note
	o.appendHistory(e)

	refreshGroup(o, it.VendorID)
	return it, nil
}

// refreshGroup derives a group's status from its members: if every item in
// the group shares a status the group takes it, otherwise the least-advanced
// non-terminal member wins.
func refreshGroup(o *Order, vendorID uuid.UUID) {
	g := o.findGroup(vendorID)
	if g == nil {
		return
	}

	members := lo.Filter(o.Items, func(it OrderItem, _ int) bool { return it.VendorID == vendorID })
	if len(members) == 0 {
		return
	}

	first := members[0].Status
	same := lo.EveryBy(members, func(it OrderItem) bool { return it.Status == first })
	if same {
		g.Status = first
		return
	}

	best := Status("")
	bestRank := int(^uint(0) >> 1)
	for _, it := range members {
		if IsTerminal(it.Status) {
			continue
		}
		if r := forwardRank[it.Status]; r < bestRank {
			bestRank = r
			best = it.Status
		}
	}
	if best != "" {
		g.Status = best
	}
}

// ApplyRefund records refund money on a line and derives item, group, order
// and payment statuses. Stock comes back only when this refund takes a live
// line out of flight; a line that already reached a terminal state keeps that
// state (a cancelled line was restocked at cancellation, a delivered one is
// with the buyer).
func ApplyRefund(o *Order, itemID uuid.UUID, amountMinor int64, reason, actor string, now time.Time) ([]RestockLine, error) {
	it := o.FindItem(itemID)
	if it == nil {
		return nil, apperr.New(apperr.KindNotFound, "order item not found")
	}
	if amountMinor <= 0 {
		return nil, apperr.New(apperr.KindValidation, "refund amount must be positive")
	}
	if amountMinor > it.RefundableMinor() {
		return nil, apperr.Newf(apperr.KindValidation,
			"refund amount %d exceeds refundable %d for item", amountMinor, it.RefundableMinor())
	}

	it.RefundAmountMinor += amountMinor
	it.RefundReason = reason
	it.RefundedAt = &now

	var restock []RestockLine
	if it.RefundableMinor() == 0 && !IsTerminal(it.Status) {
		it.Status = StatusRefunded
		restock = append(restock, RestockLine{ProductID: it.ProductID, Variant: it.Variant, Qty: it.Quantity})
		refreshGroup(o, it.VendorID)
	}

	allRefunded := lo.EveryBy(o.Items, func(x OrderItem) bool { return x.RefundableMinor() == 0 })
	if allRefunded {
		o.PaymentStatus = PaymentRefunded
		if !IsTerminal(o.Status) {
			// Derived transition, not independently requested.
			o.Status = StatusRefunded
		}
	} else {
		o.PaymentStatus = PaymentPartiallyRefunded
	}

	o.appendHistory(StatusHistoryEntry{
		Status:    o.Status,
		Actor:     actor,
		Reason:    reason,
		Note:      "refund applied to item " + itemID.String(),
		CreatedAt: now,
	})
	o.UpdatedAt = now
	return restock, nil
}

// CheckTotals verifies the financial identity the order must always satisfy.
func (o *Order) CheckTotals() error {
	if o.TotalMinor != o.SubtotalMinor+o.TaxMinor+o.ShippingMinor-o.DiscountMinor {
		return apperr.New(apperr.KindValidation, "order total does not add up")
	}
	if o.TotalMinor < 0 {
		return apperr.New(apperr.KindValidation, "order total is negative")
	}
	return nil
}
