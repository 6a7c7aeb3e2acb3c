package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-marketplace-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/orders"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/redisx"
)

// Deduper skips event ids that were already handled.
type Deduper interface {
	Seen(ctx context.Context, id string) bool
}

// Service consumes order events, keeps the status cache warm and fans out
// customer notifications. Notification delivery itself is a log line here;
// the transport sits behind this service in production.
type Service struct {
	Redis *redis.Client
	Dedup Deduper
}

// HandleOrderEvent is the kafka handler. Returning nil commits the offset,
// so malformed events are logged and committed rather than retried forever.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafka.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		slog.Error("drop malformed event", "partition", m.Partition, "offset", m.Offset, "err", err)
		return nil
	}
	if s.Dedup != nil && env.EventID != "" && s.Dedup.Seen(ctx, env.EventID) {
		return nil
	}

	switch env.EventType {
	case orders.EventOrderCreated:
		return s.orderCreated(ctx, env)
	case orders.EventOrderStatusChanged:
		return s.statusChanged(ctx, env)
	case orders.EventOrderRefunded:
		return s.refunded(env)
	default:
		slog.Debug("event ignored", "event_type", env.EventType)
		return nil
	}
}

func (s *Service) orderCreated(ctx context.Context, env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		slog.Error("drop order.created", "event_id", env.EventID, "err", err)
		return nil
	}

	s.cacheStatus(ctx, p.OrderID, string(orders.StatusPending), string(orders.PaymentCompleted))
	slog.Info("notify order confirmation",
		"order_id", p.OrderID, "order_number", p.OrderNumber,
		"customer_id", p.CustomerID, "total_minor", p.TotalMinor, "vendors", len(p.VendorIDs))
	return nil
}

func (s *Service) statusChanged(ctx context.Context, env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		slog.Error("drop order.status.changed", "event_id", env.EventID, "err", err)
		return nil
	}

	s.cacheStatus(ctx, p.OrderID, p.NewStatus, p.PaymentStatus)
	slog.Info("notify status update",
		"order_id", p.OrderID, "item_id", p.ItemID,
		"old", p.OldStatus, "new", p.NewStatus, "actor", p.Actor)
	return nil
}

func (s *Service) refunded(env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.OrderRefundedPayload](env.Payload)
	if err != nil {
		slog.Error("drop order refunded event", "event_id", env.EventID, "err", err)
		return nil
	}

	slog.Info("notify refund",
		"order_id", p.OrderID, "item_id", p.ItemID,
		"refund_id", p.RefundID, "amount_minor", p.AmountMinor, "full", p.FullRefund)
	return nil
}

func (s *Service) cacheStatus(ctx context.Context, orderID, status, paymentStatus string) {
	if s.Redis == nil {
		return
	}
	b, _ := json.Marshal(map[string]string{"status": status, "payment_status": paymentStatus})
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if err := s.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err(); err != nil {
		slog.Warn("status cache refresh", "order_id", orderID, "err", err)
	}
}
