package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// StoreCounter adapts a ulule/limiter store to Counter.
//
// Unlike RedisCounter, ulule stores keep incrementing past the limit, so
// rejected requests are still recorded in the store. Results are the same
// because Remaining is clamped at zero and the window expiry is not extended.
type StoreCounter struct {
	store limiter.Store
}

var _ Counter = (*StoreCounter)(nil)

// NewStoreCounter wraps store.
func NewStoreCounter(store limiter.Store) *StoreCounter {
	return &StoreCounter{store: store}
}

// UluleStorePrefix is prepended by the ulule driver to every DurableLimiter key.
const UluleStorePrefix = "pasfoto"

// UluleStoreKey returns the Redis key the ulule driver uses for a DurableLimiter key.
func UluleStoreKey(key string) string {
	return UluleStorePrefix + ":" + key
}

// NewRedisStoreCounter creates a StoreCounter on the ulule Redis driver.
func NewRedisStoreCounter(client *redis.Client) (*StoreCounter, error) {
	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   UluleStorePrefix,
		MaxRetry: limiter.DefaultMaxRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("create ulule redis store: %w", err)
	}
	return NewStoreCounter(store), nil
}

// Hit implements Counter. now is ignored; ulule stores use their own clock.
// ulule reports the reset in whole seconds, truncated, so ResetAt is rounded
// up to the next second and never lands before the real expiry.
func (c *StoreCounter) Hit(ctx context.Context, key string, limit int, window time.Duration, _ time.Time) (Window, error) {
	rate := limiter.Rate{
		Period: window,
		Limit:  int64(limit),
	}
	lctx, err := c.store.Get(ctx, key, rate)
	if err != nil {
		return Window{}, fmt.Errorf("ulule store get: %w", err)
	}
	return Window{
		Count:    int(lctx.Limit - lctx.Remaining),
		ResetAt:  time.Unix(lctx.Reset+1, 0),
		Exceeded: lctx.Reached,
	}, nil
}
