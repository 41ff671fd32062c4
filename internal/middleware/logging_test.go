package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/pasfoto/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
	}{
		{"GET request", "GET", "/healthz", http.StatusOK},
		{"POST request", "POST", "/api/upload-pas-foto", http.StatusCreated},
		{"throttled request", "POST", "/api/upload-pas-foto", http.StatusTooManyRequests},
		{"404 request", "GET", "/notfound", http.StatusNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			core, logs := observer.New(zap.InfoLevel)

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.handlerStatus)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			Logging(zap.New(core))(handler).ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, w.Code)
			}
			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("Expected 1 http_request entry, got %d", len(entries))
			}
			if got := entries[0].ContextMap()["status_code"]; got != int64(tt.handlerStatus) {
				t.Errorf("Logged status_code = %v, want %d", got, tt.handlerStatus)
			}
		})
	}
}

func TestStatusRecorder_FirstWriteHeaderWins(t *testing.T) {
	t.Parallel()
	rec := newStatusRecorder(httptest.NewRecorder())
	rec.WriteHeader(http.StatusTooManyRequests)
	rec.WriteHeader(http.StatusOK)
	if rec.statusCode != http.StatusTooManyRequests {
		t.Errorf("statusCode = %d, want 429", rec.statusCode)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = request.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("request id %q is not a uuid", seen)
	}
	if got := w.Header().Get(request.RequestIDHeader); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
}

func TestAudit_LogsRateLimitViolations(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.WarnLevel)
	handler := Audit(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	req := httptest.NewRequest("POST", "/api/upload-pas-foto", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("rate_limit_violation").All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 rate_limit_violation entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["ip"]; got != "203.0.113.9" {
		t.Errorf("Logged ip = %v", got)
	}
}

func TestAudit_IgnoresSuccess(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.DebugLevel)
	handler := Audit(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
	if logs.Len() != 0 {
		t.Errorf("Expected no audit entries, got %d", logs.Len())
	}
}
