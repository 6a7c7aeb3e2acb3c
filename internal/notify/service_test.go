package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/orders"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/redisx"
)

func newService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Service{
		Redis: rdb,
		Dedup: &redisx.Deduper{RDB: rdb, Service: "notifier"},
	}, mr
}

func envelopeMessage(t *testing.T, eventType string, payload any) kafka.Message {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	env := orders.NewEnvelope(eventType, "test", "", uuid.NewString(), b)
	v, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Value: v}
}

func TestStatusChangedRefreshesCache(t *testing.T) {
	svc, mr := newService(t)
	orderID := uuid.NewString()

	msg := envelopeMessage(t, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
		OrderID: orderID, OldStatus: "pending", NewStatus: "shipped",
		PaymentStatus: "completed", Actor: "admin:a1",
	})
	require.NoError(t, svc.HandleOrderEvent(context.Background(), msg))

	raw, err := mr.Get("order_status:" + orderID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"shipped","payment_status":"completed"}`, raw)
}

func TestOrderCreatedPrimesCache(t *testing.T) {
	svc, mr := newService(t)
	orderID := uuid.NewString()

	msg := envelopeMessage(t, orders.EventOrderCreated, orders.OrderCreatedPayload{
		OrderID: orderID, OrderNumber: "ORD-20250314-ABCDE",
		CustomerID: "cust-1", TotalMinor: 223964, Currency: "INR",
	})
	require.NoError(t, svc.HandleOrderEvent(context.Background(), msg))

	raw, err := mr.Get("order_status:" + orderID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"pending","payment_status":"completed"}`, raw)
}

func TestDuplicateEventIsSkipped(t *testing.T) {
	svc, mr := newService(t)
	orderID := uuid.NewString()

	msg := envelopeMessage(t, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
		OrderID: orderID, NewStatus: "confirmed", PaymentStatus: "completed",
	})
	require.NoError(t, svc.HandleOrderEvent(context.Background(), msg))

	// Simulate a newer state, then replay the old delivery verbatim.
	require.NoError(t, mr.Set("order_status:"+orderID, `{"status":"shipped","payment_status":"completed"}`))
	require.NoError(t, svc.HandleOrderEvent(context.Background(), msg))

	raw, err := mr.Get("order_status:" + orderID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"shipped","payment_status":"completed"}`, raw, "replay must not clobber newer state")
}

func TestMalformedEventIsCommitted(t *testing.T) {
	svc, _ := newService(t)
	err := svc.HandleOrderEvent(context.Background(), kafka.Message{Value: []byte("{broken")})
	assert.NoError(t, err, "poison messages are dropped, not retried")
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	svc, _ := newService(t)
	msg := envelopeMessage(t, "SomethingElse", map[string]string{"x": "y"})
	assert.NoError(t, svc.HandleOrderEvent(context.Background(), msg))
}
