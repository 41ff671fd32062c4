package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/benvon/pasfoto/internal/ratelimit"
	"go.uber.org/zap"
)

type stubLimiter struct {
	result      ratelimit.Result
	err         error
	identifiers []string
}

func (s *stubLimiter) Check(_ context.Context, identifier string, _ time.Time) (ratelimit.Result, error) {
	s.identifiers = append(s.identifiers, identifier)
	return s.result, s.err
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_AllowedSetsHeaders(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(1_000_000)
	resetAt := now.Add(15 * time.Minute)
	limiter := &stubLimiter{result: ratelimit.Result{Allowed: true, Limit: 5, Remaining: 3, ResetAt: resetAt}}

	var called bool
	handler := RateLimit(limiter, zap.NewNop(), WithRateLimitClock(func() time.Time { return now }))(okHandler(&called))

	req := httptest.NewRequest("POST", "/api/upload-pas-foto", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Fatal("expected next handler to run")
	}
	if got := w.Header().Get(HeaderRateLimitLimit); got != "5" {
		t.Errorf("%s = %q, want 5", HeaderRateLimitLimit, got)
	}
	if got := w.Header().Get(HeaderRateLimitRemaining); got != "3" {
		t.Errorf("%s = %q, want 3", HeaderRateLimitRemaining, got)
	}
	if got := w.Header().Get(HeaderRateLimitReset); got != strconv.FormatInt(resetAt.UnixMilli(), 10) {
		t.Errorf("%s = %q, want %d", HeaderRateLimitReset, got, resetAt.UnixMilli())
	}
	if got := w.Header().Get(HeaderRetryAfter); got != "" {
		t.Errorf("allowed request carries %s = %q", HeaderRetryAfter, got)
	}
	if len(limiter.identifiers) != 1 || limiter.identifiers[0] != "198.51.100.7" {
		t.Errorf("identifiers = %v, want [198.51.100.7]", limiter.identifiers)
	}
}

func TestRateLimit_RejectedReturns429(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	resetAt := now.Add(90*time.Second + 500*time.Millisecond)
	limiter := &stubLimiter{result: ratelimit.Result{Allowed: false, Limit: 5, Remaining: 0, ResetAt: resetAt}}

	var called bool
	handler := RateLimit(limiter, zap.NewNop(), WithRateLimitClock(func() time.Time { return now }))(okHandler(&called))

	req := httptest.NewRequest("POST", "/api/upload-pas-foto", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if called {
		t.Fatal("next handler must not run for a rejected request")
	}
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get(HeaderRetryAfter); got != "91" {
		t.Errorf("%s = %q, want 91", HeaderRetryAfter, got)
	}
	if got := w.Header().Get(HeaderRateLimitRemaining); got != "0" {
		t.Errorf("%s = %q, want 0", HeaderRateLimitRemaining, got)
	}
	if limiter.identifiers[0] != "203.0.113.1" {
		t.Errorf("identifier = %q, want first forwarded address", limiter.identifiers[0])
	}

	var body RateLimitResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.RemainingRequests != 0 || body.RetryAfterSeconds != 91 {
		t.Errorf("unexpected body %+v", body)
	}
	if body.ResetTime != resetAt.UTC().Format(time.RFC3339) {
		t.Errorf("resetTime = %q", body.ResetTime)
	}
	// 03:01:30 UTC is 10.01.30 WIB
	if want := "Terlalu banyak request. Silakan coba lagi setelah 10.01.30 WIB."; body.Message != want {
		t.Errorf("message = %q, want %q", body.Message, want)
	}
}

func TestRateLimit_LimiterErrorFailsClosed(t *testing.T) {
	t.Parallel()
	limiter := &stubLimiter{err: errors.New("boom")}
	var called bool
	handler := RateLimit(limiter, nil)(okHandler(&called))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/upload-pas-foto", nil))

	if called {
		t.Error("next handler must not run when the limiter fails")
	}
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestRateLimit_WithMemoryLimiter(t *testing.T) {
	t.Parallel()
	memory, err := ratelimit.NewMemoryLimiter(ratelimit.Policy{MaxRequests: 2, Window: time.Minute})
	if err != nil {
		t.Fatalf("NewMemoryLimiter: %v", err)
	}
	var called bool
	handler := RateLimit(memory, zap.NewNop())(okHandler(&called))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/upload-pas-foto", nil)
		req.Header.Set("X-Real-IP", "192.0.2.50")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i+1, codes[i], want[i])
		}
	}
}
