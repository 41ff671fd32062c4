package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript counts one request unless the limit is already reached.
// The expiry is set when the window starts and is never extended.
// Returns {count, pttl_ms, allowed}.
var fixedWindowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local allowed = 1
if current >= limit then
	allowed = 0
else
	current = redis.call('INCR', KEYS[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], window)
	ttl = window
end
return {current, ttl, allowed}
`)

// NewRedisClient builds a client for the durable store. token, when set,
// replaces any password embedded in url.
func NewRedisClient(url, token string) (*redis.Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if token = strings.TrimSpace(token); token != "" {
		opts.Password = token
	}
	return redis.NewClient(opts), nil
}

// RedisCounter is a Counter running an atomic fixed-window script in Redis.
type RedisCounter struct {
	client *redis.Client
}

var _ Counter = (*RedisCounter)(nil)

// NewRedisCounter wraps client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Hit implements Counter.
func (c *RedisCounter) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error) {
	vals, err := fixedWindowScript.Run(ctx, c.client, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("run fixed window script: %w", err)
	}
	if len(vals) != 3 {
		return Window{}, fmt.Errorf("fixed window script returned %d values, want 3", len(vals))
	}
	return Window{
		Count:    int(vals[0]),
		ResetAt:  now.Add(time.Duration(vals[1]) * time.Millisecond),
		Exceeded: vals[2] == 0,
	}, nil
}

// Inspect returns the current window for key without counting a request.
// A zero Window is returned when no window is active.
func (c *RedisCounter) Inspect(ctx context.Context, key string, now time.Time) (Window, error) {
	pipe := c.client.Pipeline()
	get := pipe.Get(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Window{}, fmt.Errorf("inspect %s: %w", key, err)
	}
	count, err := get.Int()
	if errors.Is(err, redis.Nil) {
		return Window{}, nil
	}
	if err != nil {
		return Window{}, fmt.Errorf("parse counter %s: %w", key, err)
	}
	w := Window{Count: count}
	if d := ttl.Val(); d > 0 {
		w.ResetAt = now.Add(d)
	}
	return w, nil
}

// Reset deletes the counter for key.
func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}
