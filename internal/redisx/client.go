package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	r := redis.NewClient(&redis.Options{Addr: addr})
	_ = r.WithTimeout(2 * time.Second)
	return r
}

// Deduper marks event ids as processed with SET NX. On redis errors it
// reports "not seen" so events are retried rather than dropped.
type Deduper struct {
	RDB     *redis.Client
	Service string
}

func (d *Deduper) Seen(ctx context.Context, id string) bool {
	key := KeyDedupFor(d.Service, id)
	ok, err := d.RDB.SetNX(ctx, key, 1, TTLDedup).Result()
	if err != nil {
		return false
	}
	return !ok
}
