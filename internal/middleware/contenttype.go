package middleware

import (
	"mime"
	"net/http"

	"go.uber.org/zap"
)

// RequireMultipart rejects POST requests whose body is not multipart/form-data
func RequireMultipart(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				contentType := r.Header.Get("Content-Type")
				if contentType == "" {
					respondErrorJSON(w, r, http.StatusBadRequest, "Bad Request", "Content-Type header is required", logger)
					return
				}
				mediaType, _, err := mime.ParseMediaType(contentType)
				if err != nil || mediaType != "multipart/form-data" {
					respondErrorJSON(w, r, http.StatusUnsupportedMediaType, "Unsupported Media Type",
						"Content-Type must be multipart/form-data", logger)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
