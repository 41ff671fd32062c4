package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// BackendMemory names the in-memory backend in logs, metrics and health checks.
	BackendMemory = "memory"
	// BackendDurable names the durable backend.
	BackendDurable = "durable"
)

// Selector serves every Check from exactly one backend: the durable one when it
// was configured at construction, or the in-memory one. A durable failure is
// logged and that call is served by the in-memory backend instead.
type Selector struct {
	memory  *MemoryLimiter
	durable Limiter
	store   DurableStore
	log     *zap.Logger
	metrics *MetricsCollector
}

var _ Limiter = (*Selector)(nil)

// NewSelector creates a selector over memory and an optional durable limiter.
func NewSelector(memory *MemoryLimiter, durable Limiter, log *zap.Logger, mc *MetricsCollector) (*Selector, error) {
	if memory == nil {
		return nil, fmt.Errorf("memory limiter is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{
		memory:  memory,
		durable: durable,
		log:     log,
		metrics: mc,
	}, nil
}

// Check implements Limiter.
func (s *Selector) Check(ctx context.Context, identifier string, now time.Time) (Result, error) {
	if s.durable != nil {
		res, err := s.durable.Check(ctx, identifier, now)
		if err == nil {
			s.metrics.observeDecision(BackendDurable, res)
			return res, nil
		}
		switch {
		case ctx.Err() != nil:
			// caller gone; not a store failure
			s.log.Debug("ratelimit_durable_check_canceled_using_memory",
				zap.Error(err),
			)
		case errors.Is(err, ErrBackendUnavailable):
			s.log.Warn("ratelimit_durable_backend_unavailable_using_memory",
				zap.Error(err),
			)
			s.metrics.observeFallback()
		default:
			s.log.Error("ratelimit_durable_backend_failed_using_memory",
				zap.Error(err),
			)
			s.metrics.observeFallback()
		}
	}

	res, err := s.memory.Check(ctx, identifier, now)
	if err != nil {
		return Result{}, err
	}
	s.metrics.observeDecision(BackendMemory, res)
	return res, nil
}

// Backend returns the name of the primary backend.
func (s *Selector) Backend() string {
	if s.durable != nil {
		return BackendDurable
	}
	return BackendMemory
}

// Memory returns the in-memory backend, which also serves durable fallbacks.
func (s *Selector) Memory() *MemoryLimiter {
	return s.memory
}

// Store returns the durable store, or nil when none is configured.
func (s *Selector) Store() DurableStore {
	return s.store
}

// Close releases the durable store connection, if any.
func (s *Selector) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Build creates the in-memory limiter and, when settings carry a complete
// durable configuration, the durable limiter. A partial durable configuration
// is logged and ignored. An invalid policy is an error.
func Build(settings Settings, log *zap.Logger, opts ...BuildOption) (*Selector, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := buildOptions{factory: NewDurableStore}
	for _, opt := range opts {
		opt(&b)
	}

	memory, err := NewMemoryLimiter(settings.Policy)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit policy: %w", err)
	}

	if !settings.DurableConfigured() {
		if settings.DurablePartial() {
			log.Warn("ratelimit_durable_backend_partially_configured_using_memory",
				zap.Bool("redis_url_set", strings.TrimSpace(settings.RedisURL) != ""),
				zap.Bool("redis_token_set", strings.TrimSpace(settings.RedisToken) != ""),
			)
		} else {
			log.Info("ratelimit_durable_backend_not_configured_using_memory")
		}
		return NewSelector(memory, nil, log, b.metrics)
	}

	store, err := b.factory(settings)
	if err != nil {
		return nil, fmt.Errorf("create durable rate limit store: %w", err)
	}
	durable, err := NewDurableLimiter(store, settings.Policy, WithTimeout(settings.Timeout))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	s, err := NewSelector(memory, durable, log, b.metrics)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	s.store = store
	log.Info("ratelimit_durable_backend_configured",
		zap.String("driver", settings.driver()),
		zap.Duration("timeout", durable.timeout),
	)
	return s, nil
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	factory StoreFactory
	metrics *MetricsCollector
}

// WithStoreFactory replaces NewDurableStore.
func WithStoreFactory(f StoreFactory) BuildOption {
	return func(b *buildOptions) { b.factory = f }
}

// WithMetrics records decisions and fallbacks in mc.
func WithMetrics(mc *MetricsCollector) BuildOption {
	return func(b *buildOptions) { b.metrics = mc }
}
