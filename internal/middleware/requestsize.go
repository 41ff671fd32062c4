package middleware

import (
	"fmt"
	"net/http"

	logpkg "github.com/benvon/pasfoto/internal/logger"
	"github.com/benvon/pasfoto/internal/request"
	"github.com/benvon/pasfoto/internal/validation"
	"go.uber.org/zap"
)

const (
	// DefaultMaxRequestSize is the default maximum request body size (1MB)
	DefaultMaxRequestSize int64 = 1 << 20
	// MaxUploadRequestSize covers a 25MB photo plus the multipart envelope and form fields
	MaxUploadRequestSize int64 = 26 << 20
)

// MaxRequestSize rejects declared bodies larger than maxBytes up front and caps undeclared ones
func MaxRequestSize(maxBytes int64, logger *zap.Logger) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				logger.Warn("request_body_too_large",
					zap.Int64("content_length", r.ContentLength),
					zap.Int64("max_bytes", maxBytes),
					zap.String("client_ip", logpkg.SanitizeIdentifier(request.ClientIP(r))),
				)
				respondErrorJSON(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
					fmt.Sprintf("File terlalu besar. Maksimal %dMB.", validation.MaxFileSize>>20), logger)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
