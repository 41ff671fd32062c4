package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultKeyPrefix namespaces upload counters in the durable store.
const DefaultKeyPrefix = "ratelimit:upload:"

const tracerName = "github.com/benvon/pasfoto/internal/ratelimit"

// Window is the state of one fixed window as reported by a Counter.
type Window struct {
	// Count is the number of admitted requests in the window, capped at the limit.
	Count int
	// ResetAt is when the window ends.
	ResetAt time.Time
	// Exceeded is true when the counted request was rejected.
	Exceeded bool
}

// Counter is an external atomic fixed-window counter. Hit counts one request
// against key, starting a window of the given length if none is active.
type Counter interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error)
}

// DurableLimiter enforces the policy through a Counter shared by all instances.
type DurableLimiter struct {
	counter Counter
	policy  Policy
	timeout time.Duration
	prefix  string
	tracer  trace.Tracer
}

// DurableOption configures a DurableLimiter.
type DurableOption func(*DurableLimiter)

// WithTimeout bounds each call to the counter store.
func WithTimeout(d time.Duration) DurableOption {
	return func(l *DurableLimiter) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) DurableOption {
	return func(l *DurableLimiter) { l.prefix = prefix }
}

// NewDurableLimiter creates a limiter backed by counter.
func NewDurableLimiter(counter Counter, policy Policy, opts ...DurableOption) (*DurableLimiter, error) {
	if counter == nil {
		return nil, fmt.Errorf("counter is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	l := &DurableLimiter{
		counter: counter,
		policy:  policy,
		timeout: DefaultDurableTimeout,
		prefix:  DefaultKeyPrefix,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Key returns the store key used for identifier.
func (l *DurableLimiter) Key(identifier string) string {
	return l.prefix + NormalizeIdentifier(identifier)
}

// Check counts a request in the durable store. Any store failure, including
// the timeout, is returned wrapped in ErrBackendUnavailable.
func (l *DurableLimiter) Check(ctx context.Context, identifier string, now time.Time) (Result, error) {
	ctx, span := l.tracer.Start(ctx, "ratelimit.durable.check", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	w, err := l.counter.Hit(ctx, l.Key(identifier), l.policy.MaxRequests, l.policy.Window, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "counter unavailable")
		return Result{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	res := newResult(l.policy, w.Count, w.ResetAt, !w.Exceeded)
	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", res.Allowed),
		attribute.Int("ratelimit.remaining", res.Remaining),
	)
	return res, nil
}
