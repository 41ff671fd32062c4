package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically evicts expired records from a MemoryLimiter.
type Sweeper struct {
	limiter  *MemoryLimiter
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger
	metrics  *MetricsCollector
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperClock overrides the time source used for expiry decisions.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// WithSweeperMetrics records evictions in mc.
func WithSweeperMetrics(mc *MetricsCollector) SweeperOption {
	return func(s *Sweeper) { s.metrics = mc }
}

// NewSweeper creates a sweeper for limiter running every interval.
func NewSweeper(limiter *MemoryLimiter, interval time.Duration, log *zap.Logger, opts ...SweeperOption) (*Sweeper, error) {
	if limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sweeper{
		limiter:  limiter,
		interval: interval,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if interval < limiter.Policy().Window {
		log.Warn("ratelimit_sweep_interval_shorter_than_window",
			zap.Duration("sweep_interval", interval),
			zap.Duration("window", limiter.Policy().Window),
		)
	}
	return s, nil
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep evicts expired records once and returns the number removed.
func (s *Sweeper) sweep() int {
	removed := s.limiter.Sweep(s.now())
	remaining := s.limiter.Len()
	s.metrics.observeSweep(removed, remaining)
	if removed > 0 {
		s.log.Debug("ratelimit_sweep_evicted_records",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining),
		)
	}
	return removed
}
