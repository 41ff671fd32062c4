package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DriverScript counts with RedisCounter.
	DriverScript = "script"
	// DriverUlule counts with the ulule/limiter Redis store.
	DriverUlule = "ulule"
)

// Settings is everything needed to build a Selector.
type Settings struct {
	Policy     Policy
	RedisURL   string
	RedisToken string
	Driver     string
	Timeout    time.Duration
}

// DurableConfigured reports whether both durable connection parameters are set.
func (s Settings) DurableConfigured() bool {
	return strings.TrimSpace(s.RedisURL) != "" && strings.TrimSpace(s.RedisToken) != ""
}

// DurablePartial reports whether exactly one durable connection parameter is set.
func (s Settings) DurablePartial() bool {
	url := strings.TrimSpace(s.RedisURL) != ""
	token := strings.TrimSpace(s.RedisToken) != ""
	return url != token
}

func (s Settings) driver() string {
	if s.Driver == "" {
		return DriverScript
	}
	return s.Driver
}

// DurableStore is a Counter owning a connection to the external store.
type DurableStore interface {
	Counter
	Ping(ctx context.Context) error
	Close() error
}

// StoreFactory opens the durable store described by settings.
type StoreFactory func(settings Settings) (DurableStore, error)

// NewDurableStore is the default StoreFactory. It does not contact Redis;
// connection problems surface on the first Check as ErrBackendUnavailable.
func NewDurableStore(settings Settings) (DurableStore, error) {
	client, err := NewRedisClient(settings.RedisURL, settings.RedisToken)
	if err != nil {
		return nil, err
	}
	switch settings.driver() {
	case DriverScript:
		return NewRedisCounter(client), nil
	case DriverUlule:
		sc, err := NewRedisStoreCounter(client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &clientStoreCounter{StoreCounter: sc, client: client}, nil
	default:
		_ = client.Close()
		return nil, fmt.Errorf("unsupported durable driver: %s", settings.Driver)
	}
}

type clientStoreCounter struct {
	*StoreCounter
	client *redis.Client
}

func (c *clientStoreCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *clientStoreCounter) Close() error {
	return c.client.Close()
}
