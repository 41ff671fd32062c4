package ratelimit

import (
	"context"
	"sync"
	"time"
)

type record struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a fixed-window limiter holding one record per identifier.
//
// A single mutex guards the map for both Check and Sweep. Counters are lost on
// restart and are not shared between processes.
type MemoryLimiter struct {
	policy Policy

	mu      sync.Mutex
	records map[string]record
}

// NewMemoryLimiter creates an in-memory limiter enforcing policy.
func NewMemoryLimiter(policy Policy) (*MemoryLimiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &MemoryLimiter{
		policy:  policy,
		records: make(map[string]record),
	}, nil
}

// Policy returns the enforced quota.
func (l *MemoryLimiter) Policy() Policy {
	return l.policy
}

// Check counts a request for identifier. It never returns an error.
func (l *MemoryLimiter) Check(_ context.Context, identifier string, now time.Time) (Result, error) {
	identifier = NormalizeIdentifier(identifier)

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[identifier]
	if !ok || !now.Before(rec.resetAt) {
		rec = record{count: 1, resetAt: now.Add(l.policy.Window)}
		l.records[identifier] = rec
		return newResult(l.policy, rec.count, rec.resetAt, true), nil
	}

	// Rejections leave the counter untouched until the window rolls over.
	if rec.count >= l.policy.MaxRequests {
		return newResult(l.policy, rec.count, rec.resetAt, false), nil
	}

	rec.count++
	l.records[identifier] = rec
	return newResult(l.policy, rec.count, rec.resetAt, true), nil
}

// Sweep removes every record whose window has ended at now and returns how many were removed.
func (l *MemoryLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for identifier, rec := range l.records {
		if !now.Before(rec.resetAt) {
			delete(l.records, identifier)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
