package orders

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/cart"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/payment"
)

// CartProvider is the slice of the cart service checkout needs.
type CartProvider interface {
	GetCart(ctx context.Context, ownerID string) (cart.Cart, error)
	SetAddress(ctx context.Context, ownerID string, a cart.Address) (cart.Cart, error)
	CheckAvailability(ctx context.Context, ownerID string) (cart.Cart, error)
	InvalidateCache(ownerID string)
}

// EventSink publishes one topic's messages; the kafka producer backs it.
type EventSink interface {
	Publish(key, value []byte)
}

// CheckoutSession is what the client needs to run the gateway payment flow.
type CheckoutSession struct {
	IntentID    string `json:"intent_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Totals      Totals `json:"totals"`
}

// ConfirmRequest is the client's proof that the gateway captured the payment.
// ShippingAddress, when present, replaces the address frozen at checkout.
type ConfirmRequest struct {
	IntentID        string        `json:"intent_id"`
	PaymentID       string        `json:"payment_id"`
	Signature       string        `json:"signature"`
	PaymentMethod   string        `json:"payment_method"`
	ShippingAddress *cart.Address `json:"shipping_address,omitempty"`
}

// Assembler turns a cart plus a verified payment into an order.
type Assembler struct {
	Store       Store
	Carts       CartProvider
	Catalog     cart.CatalogReader
	Gateway     payment.Gateway
	Verifier    payment.Verifier
	Policy      PricingPolicy
	Currency    string
	GatewayName string
	ServiceName string

	Created EventSink // order.created
	Cache   Cache
}

// BeginCheckout freezes the shipping address, re-checks availability and
// opens a gateway intent for the cart's current total.
func (a *Assembler) BeginCheckout(ctx context.Context, ownerID string, addr cart.Address) (CheckoutSession, error) {
	if _, err := a.Carts.SetAddress(ctx, ownerID, addr); err != nil {
		return CheckoutSession{}, err
	}

	c, err := a.Carts.CheckAvailability(ctx, ownerID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if len(c.Items) == 0 {
		return CheckoutSession{}, apperr.New(apperr.KindValidation, "cart is empty")
	}
	for _, it := range c.Items {
		if !it.IsAvailable {
			return CheckoutSession{}, apperr.Newf(apperr.KindOutOfStock,
				"item %s is no longer available", it.ID)
		}
	}

	totals := a.Policy.Compute(c.SubtotalMinor, c.DiscountMinor())
	intent, err := a.Gateway.CreateIntent(ctx, totals.TotalMinor, a.Currency, map[string]string{
		"owner_id": ownerID,
		"cart_id":  c.ID.String(),
	})
	if err != nil {
		return CheckoutSession{}, err
	}

	if err := a.Store.SaveIntent(ctx, IntentRecord{
		IntentID:    intent.ID,
		OwnerID:     ownerID,
		CartID:      c.ID,
		AmountMinor: totals.TotalMinor,
		Currency:    a.Currency,
		Status:      IntentCreated,
	}); err != nil {
		return CheckoutSession{}, err
	}

	return CheckoutSession{
		IntentID:    intent.ID,
		AmountMinor: totals.TotalMinor,
		Currency:    a.Currency,
		Totals:      totals,
	}, nil
}

// ConfirmPayment verifies the client proof and creates the order exactly
// once per intent. Replays with a valid signature return the same order.
func (a *Assembler) ConfirmPayment(ctx context.Context, ownerID string, req ConfirmRequest) (Order, error) {
	if !a.Verifier.VerifyClientProof(req.IntentID, req.PaymentID, req.Signature) {
		return Order{}, payment.ErrBadSignature
	}

	// Fast path: a confirmed intent maps straight to its order. Same
	// ownership rule as the database path below.
	if a.Cache != nil {
		if id, ok := a.Cache.OrderIDForIntent(ctx, req.IntentID); ok {
			o, err := a.Store.GetOrder(ctx, id)
			if err != nil {
				return Order{}, err
			}
			if o.CustomerID != ownerID {
				return Order{}, apperr.New(apperr.KindForbidden, "payment intent belongs to another customer")
			}
			return o, nil
		}
	}

	rec, err := a.Store.GetIntent(ctx, req.IntentID)
	if err != nil {
		return Order{}, err
	}
	if rec.OwnerID != ownerID {
		return Order{}, apperr.New(apperr.KindForbidden, "payment intent belongs to another customer")
	}
	if rec.Status == IntentFailed {
		return Order{}, apperr.New(apperr.KindValidation, "payment intent already failed")
	}
	if rec.OrderID != nil {
		o, err := a.Store.GetOrder(ctx, *rec.OrderID)
		if err != nil {
			return Order{}, err
		}
		a.afterConfirm(ctx, &o)
		return o, nil
	}

	if req.ShippingAddress != nil {
		if _, err := a.Carts.SetAddress(ctx, ownerID, *req.ShippingAddress); err != nil {
			return Order{}, err
		}
	}

	c, err := a.Carts.GetCart(ctx, ownerID)
	if err != nil {
		return Order{}, err
	}
	if c.ID != rec.CartID || len(c.Items) == 0 {
		return Order{}, apperr.New(apperr.KindValidation, "cart changed since checkout began")
	}
	totals := a.Policy.Compute(c.SubtotalMinor, c.DiscountMinor())
	if totals.TotalMinor != rec.AmountMinor {
		return Order{}, apperr.New(apperr.KindValidation, "cart total changed since checkout began")
	}

	products, err := a.Catalog.GetProducts(ctx, lo.Uniq(lo.Map(c.Items,
		func(it cart.Item, _ int) uuid.UUID { return it.ProductID })))
	if err != nil {
		return Order{}, err
	}
	vendors, err := a.Catalog.GetVendors(ctx, lo.Uniq(lo.Map(c.Items,
		func(it cart.Item, _ int) uuid.UUID { return it.VendorID })))
	if err != nil {
		return Order{}, err
	}

	o, err := BuildOrder(c, products, vendors, a.Policy, BuildParams{
		IntentID:      req.IntentID,
		TransactionID: req.PaymentID,
		PaymentMethod: req.PaymentMethod,
		Gateway:       a.GatewayName,
		Currency:      a.Currency,
		Now:           time.Now().UTC(),
	})
	if err != nil {
		return Order{}, err
	}

	created, err := a.Store.CreateOrder(ctx, o, c.ID)
	if err != nil {
		return Order{}, err
	}

	a.Carts.InvalidateCache(ownerID)
	a.afterConfirm(ctx, created)
	if created.ID == o.ID {
		a.emitCreated(created)
	}
	return *created, nil
}

func (a *Assembler) afterConfirm(ctx context.Context, o *Order) {
	if a.Cache == nil {
		return
	}
	a.Cache.RememberIntent(ctx, o.IntentID, o.ID)
	a.Cache.SetStatus(ctx, o.ID, o.Status, o.PaymentStatus)
}

func (a *Assembler) emitCreated(o *Order) {
	if a.Created == nil {
		return
	}
	payload, err := json.Marshal(OrderCreatedPayload{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		IntentID:    o.IntentID,
		TotalMinor:  o.TotalMinor,
		Currency:    o.Currency,
		VendorIDs: lo.Map(o.VendorGroups, func(g VendorOrderGroup, _ int) string {
			return g.VendorID.String()
		}),
	})
	if err != nil {
		slog.Error("encode order.created", "order_id", o.ID, "err", err)
		return
	}
	env := NewEnvelope(EventOrderCreated, a.ServiceName, "", o.ID.String(), payload)
	b, err := json.Marshal(env)
	if err != nil {
		slog.Error("encode envelope", "order_id", o.ID, "err", err)
		return
	}
	a.Created.Publish(PartitionKey(o.ID.String()), b)
}

// BuildParams carries the non-cart inputs BuildOrder needs.
type BuildParams struct {
	IntentID      string
	TransactionID string
	PaymentMethod string
	Gateway       string
	Currency      string
	Now           time.Time
}

// BuildOrder snapshots the cart into an immutable order aggregate. It does no
// I/O; stock and idempotency are enforced by the store when this is persisted.
func BuildOrder(c cart.Cart, products map[uuid.UUID]catalog.Product, vendors map[uuid.UUID]catalog.Vendor, pol PricingPolicy, p BuildParams) (*Order, error) {
	if c.ShippingAddress == nil {
		return nil, apperr.New(apperr.KindValidation, "shipping address is not set")
	}
	if len(c.Items) == 0 {
		return nil, apperr.New(apperr.KindValidation, "cart is empty")
	}

	o := &Order{
		ID:              uuid.New(),
		OrderNumber:     NewOrderNumber(p.Now),
		CustomerID:      c.OwnerID,
		IntentID:        p.IntentID,
		Currency:        p.Currency,
		Status:          StatusPending,
		PaymentStatus:   PaymentCompleted,
		PaymentMethod:   p.PaymentMethod,
		PaymentGateway:  p.Gateway,
		TransactionID:   p.TransactionID,
		ShippingAddress: *c.ShippingAddress,
		CreatedAt:       p.Now,
		UpdatedAt:       p.Now,
	}

	for _, ci := range c.Items {
		prod, ok := products[ci.ProductID]
		if !ok {
			return nil, apperr.Newf(apperr.KindNotFound, "product %s not found", ci.ProductID)
		}
		ven, ok := vendors[ci.VendorID]
		if !ok {
			return nil, apperr.Newf(apperr.KindNotFound, "vendor %s not found", ci.VendorID)
		}
		o.Items = append(o.Items, OrderItem{
			ID:             uuid.New(),
			OrderID:        o.ID,
			ProductID:      ci.ProductID,
			VendorID:       ci.VendorID,
			ShopID:         ven.ShopID,
			Quantity:       ci.Quantity,
			UnitPriceMinor: ci.UnitPriceMinor,
			Variant:        ci.Variant,
			Product: ProductSnapshot{
				Name:     prod.Name,
				Images:   prod.Images,
				Category: prod.Category,
				Variant:  ci.Variant,
			},
			Vendor: VendorSnapshot{
				Name:      ven.Name,
				StoreName: ven.StoreName,
				Location:  ven.Location,
			},
			Status: StatusPending,
		})
	}

	// One group per vendor; each seller fulfills independently.
	byVendor := lo.GroupBy(o.Items, func(it OrderItem) uuid.UUID { return it.VendorID })
	for vendorID, items := range byVendor {
		sub := lo.SumBy(items, func(it OrderItem) int64 { return it.LineTotalMinor() })
		o.VendorGroups = append(o.VendorGroups, VendorOrderGroup{
			VendorID:      vendorID,
			ShopID:        items[0].ShopID,
			SubtotalMinor: sub,
			Status:        StatusPending,
		})
	}
	o.RebuildGroupIndexes()

	t := pol.Compute(c.SubtotalMinor, c.DiscountMinor())
	o.SubtotalMinor = t.SubtotalMinor
	o.DiscountMinor = t.DiscountMinor
	o.TaxMinor = t.TaxMinor
	o.ShippingMinor = t.ShippingMinor
	o.TotalMinor = t.TotalMinor

	o.appendHistory(StatusHistoryEntry{
		Status:    StatusPending,
		Actor:     "system",
		Reason:    "order created",
		CreatedAt: p.Now,
	})

	if err := o.CheckTotals(); err != nil {
		return nil, err
	}
	return o, nil
}
