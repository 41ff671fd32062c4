package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error {
	return p.err
}

func TestHealthChecker_BasicMode(t *testing.T) {
	t.Parallel()

	// basic mode never touches dependencies, even failing ones
	h := NewHealthChecker(fakePinger{err: errors.New("down")}, nil, "memory", zap.NewNop())
	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Checks != nil || resp.Timestamp == "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHealthChecker_ExtendedMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		db           Pinger
		store        Pinger
		backend      string
		wantCode     int
		wantStatus   string
		wantDatabase string
		wantStore    string
	}{
		{
			name:         "all healthy",
			db:           fakePinger{},
			store:        fakePinger{},
			backend:      "durable",
			wantCode:     http.StatusOK,
			wantStatus:   "healthy",
			wantDatabase: "healthy",
			wantStore:    "healthy",
		},
		{
			name:         "memory only",
			db:           fakePinger{},
			backend:      "memory",
			wantCode:     http.StatusOK,
			wantStatus:   "healthy",
			wantDatabase: "healthy",
			wantStore:    notConfigured,
		},
		{
			name:         "durable store down degrades",
			db:           fakePinger{},
			store:        fakePinger{err: errors.New("dial tcp: refused")},
			backend:      "durable",
			wantCode:     http.StatusOK,
			wantStatus:   "healthy",
			wantDatabase: "healthy",
			wantStore:    "degraded: dial tcp: refused",
		},
		{
			name:         "database down",
			db:           fakePinger{err: errors.New("connection reset")},
			store:        fakePinger{},
			backend:      "durable",
			wantCode:     http.StatusServiceUnavailable,
			wantStatus:   "unhealthy",
			wantDatabase: "unhealthy: connection reset",
			wantStore:    "healthy",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthChecker(tt.db, tt.store, tt.backend, nil)
			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz?mode=extended", nil))

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if got := resp.Checks["database"]; got != tt.wantDatabase {
				t.Errorf("database = %q, want %q", got, tt.wantDatabase)
			}
			if got := resp.Checks["ratelimit_store"]; got != tt.wantStore {
				t.Errorf("ratelimit_store = %q, want %q", got, tt.wantStore)
			}
			if got := resp.Checks["ratelimit_backend"]; got != tt.backend {
				t.Errorf("ratelimit_backend = %q, want %q", got, tt.backend)
			}
		})
	}
}

func TestHealthChecker_NoDatabase(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker(nil, nil, "memory", nil)
	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz?mode=extended", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"database":"not configured"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
