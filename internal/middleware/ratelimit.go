package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	logpkg "github.com/benvon/pasfoto/internal/logger"
	"github.com/benvon/pasfoto/internal/ratelimit"
	"github.com/benvon/pasfoto/internal/request"
	"go.uber.org/zap"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// customerZone is the shop's local time, used for the human readable retry time
var customerZone = time.FixedZone("WIB", 7*60*60)

// RateLimitResponse is the body of a 429 response
type RateLimitResponse struct {
	Success           bool   `json:"success"`
	Error             string `json:"error"`
	Message           string `json:"message"`
	RemainingRequests int    `json:"remainingRequests"`
	ResetTime         string `json:"resetTime"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds"`
	Timestamp         string `json:"timestamp"`
}

type rateLimitOptions struct {
	now func() time.Time
}

// RateLimitOption configures the RateLimit middleware
type RateLimitOption func(*rateLimitOptions)

// WithRateLimitClock overrides the time source
func WithRateLimitClock(now func() time.Time) RateLimitOption {
	return func(o *rateLimitOptions) {
		o.now = now
	}
}

// RateLimit admits or rejects each request through limiter, keyed by request.ClientIP.
// Admitted requests carry the X-RateLimit-* headers; rejected ones get a 429 with Retry-After.
// A limiter error fails closed with 503.
func RateLimit(limiter ratelimit.Limiter, logger *zap.Logger, opts ...RateLimitOption) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := rateLimitOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := o.now()
			identifier := request.ClientIP(r)

			res, err := limiter.Check(r.Context(), identifier, now)
			if err != nil {
				logger.Error("ratelimit_check_failed",
					zap.String("identifier", logpkg.SanitizeIdentifier(identifier)),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.Error(err),
				)
				respondErrorJSON(w, r, http.StatusServiceUnavailable, "Service Unavailable",
					"Layanan sedang sibuk. Silakan coba lagi nanti.", logger)
				return
			}

			setRateLimitHeaders(w.Header(), res)

			if !res.Allowed {
				retryAfter := res.RetryAfter(now)
				logger.Warn("ratelimit_exceeded",
					zap.String("identifier", logpkg.SanitizeIdentifier(identifier)),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.Int("remaining", res.Remaining),
					zap.Time("reset_at", res.ResetAt),
				)
				respondRateLimited(w, res, retryAfter, now, logger)
				return
			}

			logger.Debug("ratelimit_check_passed",
				zap.Int("remaining", res.Remaining),
				zap.Int("limit", res.Limit),
			)
			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(h http.Header, res ratelimit.Result) {
	h.Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(res.ResetAt.UnixMilli(), 10))
}

func respondRateLimited(w http.ResponseWriter, res ratelimit.Result, retryAfter time.Duration, now time.Time, logger *zap.Logger) {
	seconds := int64(retryAfter / time.Second)
	w.Header().Set(HeaderRetryAfter, strconv.FormatInt(seconds, 10))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	body := RateLimitResponse{
		Success: false,
		Error:   "Too Many Requests",
		Message: fmt.Sprintf("Terlalu banyak request. Silakan coba lagi setelah %s WIB.",
			res.ResetAt.In(customerZone).Format("15.04.05")),
		RemainingRequests: res.Remaining,
		ResetTime:         res.ResetAt.UTC().Format(time.RFC3339),
		RetryAfterSeconds: seconds,
		Timestamp:         now.UTC().Format(time.RFC3339),
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed_to_encode_rate_limit_response", zap.Error(err))
	}
}
