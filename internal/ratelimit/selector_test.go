package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func failingFactory(t *testing.T) StoreFactory {
	return func(Settings) (DurableStore, error) {
		t.Error("durable store must not be created without a complete configuration")
		return nil, errors.New("unexpected durable store creation")
	}
}

func TestSettings_DurableConfiguration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name           string
		url, token     string
		wantConfigured bool
		wantPartial    bool
	}{
		{"none", "", "", false, false},
		{"url only", "rediss://example.upstash.io:6379", "", false, true},
		{"token only", "", "secret", false, true},
		{"whitespace token", "rediss://example.upstash.io:6379", "  ", false, true},
		{"both", "rediss://example.upstash.io:6379", "secret", true, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := Settings{RedisURL: tt.url, RedisToken: tt.token}
			if got := s.DurableConfigured(); got != tt.wantConfigured {
				t.Errorf("DurableConfigured() = %v, want %v", got, tt.wantConfigured)
			}
			if got := s.DurablePartial(); got != tt.wantPartial {
				t.Errorf("DurablePartial() = %v, want %v", got, tt.wantPartial)
			}
		})
	}
}

func TestBuild_InvalidPolicy(t *testing.T) {
	t.Parallel()
	if _, err := Build(Settings{Policy: Policy{MaxRequests: 0, Window: time.Minute}}, nil, WithStoreFactory(failingFactory(t))); err == nil {
		t.Error("expected error for non-positive max requests")
	}
}

func TestBuild_UnconfiguredNeverTouchesDurableStore(t *testing.T) {
	t.Parallel()
	s, err := Build(Settings{Policy: Policy{MaxRequests: 5, Window: 15 * time.Minute}}, nil, WithStoreFactory(failingFactory(t)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s.Backend() != BackendMemory {
		t.Errorf("Backend() = %q, want %q", s.Backend(), BackendMemory)
	}
	if s.Store() != nil {
		t.Errorf("Store() = %v, want nil", s.Store())
	}

	now := time.Now()
	for i := 0; i < 100; i++ {
		res := mustCheck(t, s, "1.2.3.4", now)
		if wantAllowed := i < 5; res.Allowed != wantAllowed {
			t.Fatalf("call %d: allowed = %v, want %v", i+1, res.Allowed, wantAllowed)
		}
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestBuild_PartialConfigurationUsesMemory(t *testing.T) {
	t.Parallel()
	settings := Settings{Policy: DefaultPolicy(), RedisURL: "rediss://example.upstash.io:6379"}
	s, err := Build(settings, nil, WithStoreFactory(failingFactory(t)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s.Backend() != BackendMemory {
		t.Errorf("Backend() = %q, want %q", s.Backend(), BackendMemory)
	}
}

func TestBuild_ConfiguredUsesDurableStore(t *testing.T) {
	t.Parallel()
	counter := &mockCounter{}
	settings := Settings{
		Policy:     DefaultPolicy(),
		RedisURL:   "rediss://example.upstash.io:6379",
		RedisToken: "secret",
		Timeout:    time.Second,
	}
	var gotSettings Settings
	s, err := Build(settings, nil, WithStoreFactory(func(s Settings) (DurableStore, error) {
		gotSettings = s
		return counter, nil
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if gotSettings.RedisToken != "secret" {
		t.Errorf("factory received %+v", gotSettings)
	}
	if s.Backend() != BackendDurable {
		t.Errorf("Backend() = %q, want %q", s.Backend(), BackendDurable)
	}

	mustCheck(t, s, "1.2.3.4", time.Now())
	if len(counter.keys) != 1 {
		t.Errorf("durable counter called %d times, want 1", len(counter.keys))
	}
	if s.Memory().Len() != 0 {
		t.Errorf("memory backend should be untouched, has %d records", s.Memory().Len())
	}
}

func TestBuild_FactoryError(t *testing.T) {
	t.Parallel()
	settings := Settings{Policy: DefaultPolicy(), RedisURL: "redis://x", RedisToken: "t"}
	_, err := Build(settings, nil, WithStoreFactory(func(Settings) (DurableStore, error) {
		return nil, errors.New("bad url")
	}))
	if err == nil {
		t.Error("expected factory error to be returned")
	}
}

func TestNewDurableStore_UnsupportedDriver(t *testing.T) {
	t.Parallel()
	settings := Settings{RedisURL: "redis://127.0.0.1:6379/0", RedisToken: "t", Driver: "memcached"}
	if _, err := NewDurableStore(settings); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestSelector_FallsBackToMemoryWhenDurableUnavailable(t *testing.T) {
	t.Parallel()
	memory := newTestMemoryLimiter(t, Policy{MaxRequests: 2, Window: time.Minute})
	counter := &mockCounter{hitFunc: func(context.Context, string, int, time.Duration, time.Time) (Window, error) {
		return Window{}, errors.New("dial tcp: connection refused")
	}}
	durable := newTestDurableLimiter(t, counter, memory.Policy())

	mc := NewMetricsCollector("test")
	mc.MustRegister(prometheus.NewRegistry())

	s, err := NewSelector(memory, durable, nil, mc)
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}

	now := time.Now()
	for i := 0; i < 2; i++ {
		res, err := s.Check(context.Background(), "1.2.3.4", now)
		if err != nil {
			t.Fatalf("call %d: fallback must not surface an error, got %v", i+1, err)
		}
		if !res.Allowed {
			t.Fatalf("call %d: expected allowed from memory fallback", i+1)
		}
	}
	res := mustCheck(t, s, "1.2.3.4", now)
	if res.Allowed {
		t.Errorf("fallback must still enforce the quota, got %+v", res)
	}

	if got := testutil.ToFloat64(mc.Fallbacks); got != 3 {
		t.Errorf("fallbacks = %v, want 3", got)
	}
	if got := testutil.ToFloat64(mc.Decisions.WithLabelValues(BackendMemory, metricsValRejected)); got != 1 {
		t.Errorf("memory rejections = %v, want 1", got)
	}
}

func TestSelector_CanceledContextIsNotAFallback(t *testing.T) {
	t.Parallel()
	memory := newTestMemoryLimiter(t, Policy{MaxRequests: 2, Window: time.Minute})
	counter := &mockCounter{hitFunc: func(ctx context.Context, _ string, _ int, _ time.Duration, _ time.Time) (Window, error) {
		return Window{}, ctx.Err()
	}}
	durable := newTestDurableLimiter(t, counter, memory.Policy())

	mc := NewMetricsCollector("test")
	mc.MustRegister(prometheus.NewRegistry())
	core, logs := observer.New(zap.DebugLevel)

	s, err := NewSelector(memory, durable, zap.New(core), mc)
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Check(ctx, "1.2.3.4", time.Now())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !res.Allowed {
		t.Errorf("Check() = %+v, want allowed from memory", res)
	}

	if got := testutil.ToFloat64(mc.Fallbacks); got != 0 {
		t.Errorf("fallbacks = %v, want 0 for a canceled request", got)
	}
	if got := testutil.ToFloat64(mc.Decisions.WithLabelValues(BackendMemory, metricsValAllowed)); got != 1 {
		t.Errorf("memory allowed decisions = %v, want 1", got)
	}
	if n := logs.FilterLevelExact(zapcore.WarnLevel).Len() + logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
		t.Errorf("logged %d warn/error entries for a canceled request", n)
	}
	if logs.FilterMessage("ratelimit_durable_check_canceled_using_memory").Len() != 1 {
		t.Errorf("expected one debug entry, got %v", logs.All())
	}
}

func TestSelector_DurableResultIsNotMixedWithMemory(t *testing.T) {
	t.Parallel()
	memory := newTestMemoryLimiter(t, Policy{MaxRequests: 5, Window: time.Minute})
	resetAt := time.Now().Add(time.Minute)
	counter := &mockCounter{hitFunc: func(context.Context, string, int, time.Duration, time.Time) (Window, error) {
		return Window{Count: 5, ResetAt: resetAt, Exceeded: true}, nil
	}}
	durable := newTestDurableLimiter(t, counter, memory.Policy())
	s, err := NewSelector(memory, durable, nil, nil)
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}

	res := mustCheck(t, s, "1.2.3.4", time.Now())
	if res.Allowed || !res.ResetAt.Equal(resetAt) {
		t.Errorf("Check() = %+v, want the durable rejection", res)
	}
	if memory.Len() != 0 {
		t.Errorf("memory backend recorded %d identifiers while durable was healthy", memory.Len())
	}
}

func TestNewSelector_RequiresMemory(t *testing.T) {
	t.Parallel()
	if _, err := NewSelector(nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil memory limiter")
	}
}
