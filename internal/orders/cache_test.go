package orders

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &RedisCache{RDB: rdb}, mr
}

func TestRedisCacheIntentRoundTrip(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()
	orderID := uuid.New()

	_, ok := c.OrderIDForIntent(ctx, "intent_1")
	assert.False(t, ok)

	c.RememberIntent(ctx, "intent_1", orderID)
	got, ok := c.OrderIDForIntent(ctx, "intent_1")
	require.True(t, ok)
	assert.Equal(t, orderID, got)
}

func TestRedisCacheIntentExpires(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	c.RememberIntent(ctx, "intent_1", uuid.New())
	mr.FastForward(25 * time.Hour) // past the 24h TTL

	_, ok := c.OrderIDForIntent(ctx, "intent_1")
	assert.False(t, ok)
}

func TestRedisCacheStatusSnapshot(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	orderID := uuid.New()

	c.SetStatus(ctx, orderID, StatusShipped, PaymentCompleted)

	raw, err := mr.Get("order_status:" + orderID.String())
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"shipped","payment_status":"completed"}`, raw)
}

func TestRedisCacheGarbageValueIsMiss(t *testing.T) {
	c, mr := newRedisCache(t)
	require.NoError(t, mr.Set("idem:payment:verify:intent_1", "not-a-uuid"))

	_, ok := c.OrderIDForIntent(context.Background(), "intent_1")
	assert.False(t, ok)
}
