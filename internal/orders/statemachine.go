package orders

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
)

const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleAdmin    = "admin"
)

// Actor identifies who requested a change. Vendors carry their vendor id.
type Actor struct {
	ID   string
	Role string
}

// TrackingInfo optionally rides along with a shipped transition.
type TrackingInfo struct {
	Number  string `json:"tracking_number,omitempty"`
	Carrier string `json:"tracking_carrier,omitempty"`
}

// StateMachine applies status transitions under the row lock and publishes
// the resulting change events.
type StateMachine struct {
	Store            Store
	SelfCancelWindow time.Duration
	ServiceName      string

	StatusChanged EventSink // order.status.changed
	Cache         Cache
}

// Transition moves the whole order. Only admins move orders wholesale;
// vendors work per item and customers cancel through CancelByCustomer.
func (m *StateMachine) Transition(ctx context.Context, orderID uuid.UUID, to Status, actor Actor, reason, note string) (Order, error) {
	if actor.Role != RoleAdmin {
		return Order{}, apperr.New(apperr.KindForbidden, "only admins may change order status directly")
	}
	if !ValidStatus(to) {
		return Order{}, apperr.Newf(apperr.KindValidation, "unknown status %q", to)
	}

	var old Status
	o, err := m.Store.WithOrder(ctx, orderID, func(o *Order) ([]RestockLine, error) {
		old = o.Status
		return ApplyTransition(o, to, StatusHistoryEntry{
			Actor:     actor.Role + ":" + actor.ID,
			Reason:    reason,
			Note:      note,
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return Order{}, err
	}

	m.afterChange(ctx, &o, "", old, o.Status, actor, reason)
	return o, nil
}

// UpdateItemStatus moves one line; the owning vendor or an admin may call it.
// Tracking info is recorded when the line ships.
func (m *StateMachine) UpdateItemStatus(ctx context.Context, orderID, itemID uuid.UUID, to Status, tracking TrackingInfo, actor Actor, note string) (Order, error) {
	if actor.Role != RoleAdmin && actor.Role != RoleVendor {
		return Order{}, apperr.New(apperr.KindForbidden, "only vendors and admins may update item status")
	}
	if !ValidStatus(to) {
		return Order{}, apperr.Newf(apperr.KindValidation, "unknown status %q", to)
	}

	var old Status
	o, err := m.Store.WithOrder(ctx, orderID, func(o *Order) ([]RestockLine, error) {
		target := o.FindItem(itemID)
		if target == nil {
			return nil, apperr.New(apperr.KindNotFound, "order item not found")
		}
		if actor.Role == RoleVendor && target.VendorID.String() != actor.ID {
			return nil, apperr.New(apperr.KindForbidden, "item belongs to another vendor")
		}
		old = target.Status

		it, err := ApplyItemTransition(o, itemID, to, StatusHistoryEntry{
			Actor:     actor.Role + ":" + actor.ID,
			Note:      note,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		if to == StatusShipped {
			it.TrackingNumber = tracking.Number
			it.TrackingCarrier = tracking.Carrier
		}

		// A vendor cancelling its line hands the stock back.
		if to == StatusCancelled {
			return []RestockLine{{ProductID: it.ProductID, Variant: it.Variant, Qty: it.Quantity}}, nil
		}
		return nil, nil
	})
	if err != nil {
		return Order{}, err
	}

	m.afterChange(ctx, &o, itemID.String(), old, to, actor, note)
	return o, nil
}

// CancelByCustomer lets the buyer back out while the order is still
// pending: own order, inside the cancel window.
func (m *StateMachine) CancelByCustomer(ctx context.Context, orderID uuid.UUID, customerID, reason string) (Order, error) {
	var old Status
	o, err := m.Store.WithOrder(ctx, orderID, func(o *Order) ([]RestockLine, error) {
		if o.CustomerID != customerID {
			return nil, apperr.New(apperr.KindForbidden, "order belongs to another customer")
		}
		if o.Status != StatusPending {
			return nil, apperr.Newf(apperr.KindValidation, "order in status %s can no longer be cancelled", o.Status)
		}
		now := time.Now().UTC()
		if now.Sub(o.CreatedAt) > m.SelfCancelWindow {
			return nil, apperr.Newf(apperr.KindValidation,
				"cancellation window of %s has passed", m.SelfCancelWindow)
		}
		old = o.Status

		return ApplyTransition(o, StatusCancelled, StatusHistoryEntry{
			Actor:     RoleCustomer + ":" + customerID,
			Reason:    reason,
			CreatedAt: now,
		})
	})
	if err != nil {
		return Order{}, err
	}

	m.afterChange(ctx, &o, "", old, o.Status, Actor{ID: customerID, Role: RoleCustomer}, reason)
	return o, nil
}

func (m *StateMachine) afterChange(ctx context.Context, o *Order, itemID string, old, next Status, actor Actor, reason string) {
	if m.Cache != nil {
		m.Cache.SetStatus(ctx, o.ID, o.Status, o.PaymentStatus)
	}
	if m.StatusChanged == nil {
		return
	}

	payload, err := json.Marshal(OrderStatusChangedPayload{
		OrderID:       o.ID.String(),
		ItemID:        itemID,
		OldStatus:     string(old),
		NewStatus:     string(next),
		PaymentStatus: string(o.PaymentStatus),
		Actor:         actor.Role + ":" + actor.ID,
		Reason:        reason,
	})
	if err != nil {
		slog.Error("encode order.status.changed", "order_id", o.ID, "err", err)
		return
	}
	env := NewEnvelope(EventOrderStatusChanged, m.ServiceName, "", o.ID.String(), payload)
	b, err := json.Marshal(env)
	if err != nil {
		slog.Error("encode envelope", "order_id", o.ID, "err", err)
		return
	}
	m.StatusChanged.Publish(PartitionKey(o.ID.String()), b)
}
