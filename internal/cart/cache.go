package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/redisx"
)

var ErrCacheMiss = errors.New("cart cache miss")

// Cache is a read-through cache for populated carts. Best effort only,
// the repository stays the source of truth.
type Cache interface {
	Get(ctx context.Context, ownerID string) (*Cart, error)
	Set(ctx context.Context, ownerID string, c *Cart) error
	Delete(ctx context.Context, ownerID string) error
}

type RedisCache struct{ RDB *redis.Client }

func (rc *RedisCache) key(ownerID string) string {
	return fmt.Sprintf(redisx.KeyCartCache, ownerID)
}

func (rc *RedisCache) Get(ctx context.Context, ownerID string) (*Cart, error) {
	b, err := rc.RDB.Get(ctx, rc.key(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var c Cart
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode cached cart: %w", err)
	}
	return &c, nil
}

func (rc *RedisCache) Set(ctx context.Context, ownerID string, c *Cart) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return rc.RDB.Set(ctx, rc.key(ownerID), b, redisx.TTLCartCache).Err()
}

func (rc *RedisCache) Delete(ctx context.Context, ownerID string) error {
	return rc.RDB.Del(ctx, rc.key(ownerID)).Err()
}
