package middleware

import (
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout is the default request timeout
	DefaultRequestTimeout = 30 * time.Second
	// UploadRequestTimeout leaves room for a large photo on a slow mobile connection
	UploadRequestTimeout = 2 * time.Minute
)

// Timeout bounds handler run time and answers 503 when it is exceeded
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, `{"success":false,"error":"Request Timeout","message":"Permintaan melebihi batas waktu."}`)
	}
}
