// Package ratelimit implements fixed-window admission control for the upload API.
//
// Two backends satisfy the Limiter contract: MemoryLimiter keeps per-identifier
// counters in process memory and is swept periodically, DurableLimiter delegates
// counting to an external atomic counter (Redis). Selector picks one at
// construction time and falls back to memory when the durable store is unavailable.
//
// MemoryLimiter state is process-local. Deployments running more than one
// instance must configure the durable backend, otherwise each instance enforces
// its own quota.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UnknownIdentifier is the bucket shared by every caller whose identity cannot be determined.
const UnknownIdentifier = "unknown"

const (
	// DefaultMaxRequests is the number of uploads allowed per window.
	DefaultMaxRequests = 5
	// DefaultWindow is the fixed window length.
	DefaultWindow = 15 * time.Minute
	// DefaultSweepInterval is how often expired in-memory records are evicted.
	DefaultSweepInterval = 30 * time.Minute
	// DefaultDurableTimeout bounds a single call to the durable store.
	DefaultDurableTimeout = 500 * time.Millisecond
)

// ErrBackendUnavailable is returned by durable backends when the counter store
// cannot be reached or does not answer in time.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// Policy is the process-wide quota. It is immutable once a limiter is built.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultPolicy returns 5 requests per 15 minutes.
func DefaultPolicy() Policy {
	return Policy{MaxRequests: DefaultMaxRequests, Window: DefaultWindow}
}

// Validate reports whether the policy can be enforced.
func (p Policy) Validate() error {
	if p.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive, got %d", p.MaxRequests)
	}
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", p.Window)
	}
	return nil
}

// Result is the outcome of a single admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long a rejected caller should wait, rounded up to whole seconds.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return (d + time.Second - 1).Truncate(time.Second)
}

// Limiter decides whether a request from identifier may proceed at time now.
// Exceeding the quota is reported through Result.Allowed, never as an error.
type Limiter interface {
	Check(ctx context.Context, identifier string, now time.Time) (Result, error)
}

// NormalizeIdentifier trims the identifier and maps an empty one to UnknownIdentifier.
func NormalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return UnknownIdentifier
	}
	return identifier
}

func newResult(p Policy, count int, resetAt time.Time, allowed bool) Result {
	return Result{
		Allowed:   allowed,
		Limit:     p.MaxRequests,
		Remaining: max(0, p.MaxRequests-count),
		ResetAt:   resetAt,
	}
}
