package orders

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/payment"
)

// RefundProcessor moves money back through the gateway and records the
// result on the order. Gateway first, ledger second: if the gateway call
// fails nothing is recorded, if recording fails the refund id is logged for
// manual reconciliation.
type RefundProcessor struct {
	Store       Store
	Gateway     payment.Gateway
	ServiceName string

	StatusChanged EventSink
	Cache         Cache
}

// Refund refunds part or all of one order line. Vendors may refund their own
// lines, admins any line. Passing amountMinor=0 refunds the remaining
// refundable balance of the line.
func (p *RefundProcessor) Refund(ctx context.Context, orderID, itemID uuid.UUID, amountMinor int64, reason string, actor Actor) (Order, error) {
	if actor.Role != RoleAdmin && actor.Role != RoleVendor {
		return Order{}, apperr.New(apperr.KindForbidden, "only vendors and admins may issue refunds")
	}
	if reason == "" {
		return Order{}, apperr.New(apperr.KindValidation, "refund reason is required")
	}

	// Pre-validate against a snapshot so we never call the gateway for a
	// request that cannot be recorded.
	o, err := p.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	it := o.FindItem(itemID)
	if it == nil {
		return Order{}, apperr.New(apperr.KindNotFound, "order item not found")
	}
	if actor.Role == RoleVendor && it.VendorID.String() != actor.ID {
		return Order{}, apperr.New(apperr.KindForbidden, "item belongs to another vendor")
	}
	if o.PaymentStatus != PaymentCompleted && o.PaymentStatus != PaymentPartiallyRefunded {
		return Order{}, apperr.Newf(apperr.KindValidation,
			"payment in status %s cannot be refunded", o.PaymentStatus)
	}
	if o.TransactionID == "" {
		return Order{}, apperr.New(apperr.KindValidation, "order has no settled transaction")
	}
	if amountMinor == 0 {
		amountMinor = it.RefundableMinor()
	}
	if amountMinor <= 0 || amountMinor > it.RefundableMinor() {
		return Order{}, apperr.Newf(apperr.KindValidation,
			"refund amount %d is outside refundable range (max %d)", amountMinor, it.RefundableMinor())
	}

	refundID, err := p.Gateway.Refund(ctx, o.TransactionID, amountMinor)
	if err != nil {
		return Order{}, err
	}

	now := time.Now().UTC()
	updated, err := p.Store.WithOrder(ctx, orderID, func(o *Order) ([]RestockLine, error) {
		// Authoritative re-check under the lock; a concurrent refund may
		// have shrunk the refundable balance since the snapshot.
		return ApplyRefund(o, itemID, amountMinor, reason, actor.Role+":"+actor.ID, now)
	})
	if err != nil {
		slog.Error("refund recorded at gateway but not on order, reconcile manually",
			"order_id", orderID, "item_id", itemID, "refund_id", refundID, "amount_minor", amountMinor, "err", err)
		return Order{}, err
	}

	p.afterRefund(ctx, &updated, itemID, refundID, amountMinor)
	return updated, nil
}

func (p *RefundProcessor) afterRefund(ctx context.Context, o *Order, itemID uuid.UUID, refundID string, amountMinor int64) {
	if p.Cache != nil {
		p.Cache.SetStatus(ctx, o.ID, o.Status, o.PaymentStatus)
	}
	if p.StatusChanged == nil {
		return
	}

	it := o.FindItem(itemID)
	full := it != nil && it.RefundableMinor() == 0
	payload, err := json.Marshal(OrderRefundedPayload{
		OrderID:     o.ID.String(),
		ItemID:      itemID.String(),
		RefundID:    refundID,
		AmountMinor: amountMinor,
		FullRefund:  full,
	})
	if err != nil {
		slog.Error("encode order refunded payload", "order_id", o.ID, "err", err)
		return
	}
	env := NewEnvelope(EventOrderRefunded, p.ServiceName, "", o.ID.String(), payload)
	b, err := json.Marshal(env)
	if err != nil {
		slog.Error("encode envelope", "order_id", o.ID, "err", err)
		return
	}
	p.StatusChanged.Publish(PartitionKey(o.ID.String()), b)
}
