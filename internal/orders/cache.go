package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/redisx"
)

// Cache is the read-side fast path: confirmed intent -> order id, and the
// status snapshot the notifier keeps warm. Postgres stays authoritative.
type Cache interface {
	OrderIDForIntent(ctx context.Context, intentID string) (uuid.UUID, bool)
	RememberIntent(ctx context.Context, intentID string, orderID uuid.UUID)
	SetStatus(ctx context.Context, orderID uuid.UUID, status Status, payment PaymentStatus)
}

type statusSnapshot struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

// RedisCache is best-effort: every miss or error falls through to the DB.
type RedisCache struct{ RDB *redis.Client }

func (c *RedisCache) OrderIDForIntent(ctx context.Context, intentID string) (uuid.UUID, bool) {
	raw, err := c.RDB.Get(ctx, fmt.Sprintf(redisx.KeyIdemPaymentVerify, intentID)).Result()
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *RedisCache) RememberIntent(ctx context.Context, intentID string, orderID uuid.UUID) {
	key := fmt.Sprintf(redisx.KeyIdemPaymentVerify, intentID)
	if err := c.RDB.Set(ctx, key, orderID.String(), redisx.TTLIdempotency).Err(); err != nil {
		slog.Warn("idempotency cache set", "intent_id", intentID, "err", err)
	}
}

func (c *RedisCache) SetStatus(ctx context.Context, orderID uuid.UUID, status Status, payment PaymentStatus) {
	b, _ := json.Marshal(statusSnapshot{Status: string(status), PaymentStatus: string(payment)})
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID.String())
	if err := c.RDB.Set(ctx, key, b, redisx.TTLStatusCache).Err(); err != nil {
		slog.Warn("order status cache set", "order_id", orderID, "err", err)
	}
}

var _ Cache = (*RedisCache)(nil)
