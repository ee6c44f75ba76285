package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bimakw/yield-aggregator/internal/testutil"
)

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response
}

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		db         HealthChecker
		cache      HealthChecker
		chain      HealthChecker
		wantCode   int
		wantStatus string
		wantDB     string
	}{
		{
			name:       "all healthy",
			db:         testutil.NewMockHealthChecker(true),
			cache:      testutil.NewMockHealthChecker(true),
			chain:      testutil.NewMockHealthChecker(true),
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			wantDB:     "healthy",
		},
		{
			name:       "database unhealthy",
			db:         testutil.NewMockHealthChecker(false),
			cache:      testutil.NewMockHealthChecker(false),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantDB:     "unhealthy: health check failed",
		},
		{
			name:       "cache unhealthy",
			db:         testutil.NewMockHealthChecker(true),
			cache:      testutil.NewMockHealthChecker(false),
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantDB:     "healthy",
		},
		{
			name: "rpc unhealthy",
			chain: HealthCheckFunc(func(ctx context.Context) error {
				return errors.New("dial tcp: connection refused")
			}),
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantDB:     "memory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.db, tt.cache, tt.chain)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			handler.Health(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected Content-Type application/json, got %s", ct)
			}

			response := decodeHealth(t, rec)
			if response.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, response.Status)
			}
			if response.Services["database"] != tt.wantDB {
				t.Errorf("expected database %q, got %q", tt.wantDB, response.Services["database"])
			}
			if response.Timestamp == "" {
				t.Error("expected non-empty timestamp")
			}
		})
	}
}

func TestHealthHandler_Health_NilCheckersOmitted(t *testing.T) {
	handler := NewHealthHandler(testutil.NewMockHealthChecker(true), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.Health(rec, req)

	response := decodeHealth(t, rec)
	if _, ok := response.Services["cache"]; ok {
		t.Error("expected no cache entry")
	}
	if _, ok := response.Services["rpc"]; ok {
		t.Error("expected no rpc entry")
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	t.Run("healthy database", func(t *testing.T) {
		handler := NewHealthHandler(testutil.NewMockHealthChecker(true), nil, nil)
		rec := httptest.NewRecorder()
		handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		if rec.Code != http.StatusOK || rec.Body.String() != "ready" {
			t.Errorf("expected 200 ready, got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("unhealthy database", func(t *testing.T) {
		handler := NewHealthHandler(testutil.NewMockHealthChecker(false), nil, nil)
		rec := httptest.NewRecorder()
		handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rec.Code)
		}
	})

	t.Run("memory store", func(t *testing.T) {
		handler := NewHealthHandler(nil, nil, nil)
		rec := httptest.NewRecorder()
		handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})
}

func TestHealthHandler_Live(t *testing.T) {
	handler := NewHealthHandler(testutil.NewMockHealthChecker(false), nil, nil)

	rec := httptest.NewRecorder()
	handler.Live(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "alive" {
		t.Errorf("expected body 'alive', got %s", rec.Body.String())
	}
}
