package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flemzord/batchexec/internal/executor"
)

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		exec       Controller
		wantCode   int
		wantStatus string
	}{
		{"no executor", nil, http.StatusOK, "ok"},
		{"all alive", runningController(3, 3), http.StatusOK, "ok"},
		{"worker down", runningController(3, 2), http.StatusServiceUnavailable, "degraded"},
		{"closed executor", &fakeController{stats: executor.Stats{Status: "closed", Workers: 2}}, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := handlerGateway(tt.exec, nil)
			rr := httptest.NewRecorder()
			g.handleHealth().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rr.Code, tt.wantCode)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestHealth_ReportsWorkers(t *testing.T) {
	t.Parallel()

	g := handlerGateway(runningController(4, 4), nil)
	rr := httptest.NewRecorder()
	g.handleHealth().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Executor != "running" || resp.Workers != 4 || resp.WorkersAlive != 4 {
		t.Errorf("resp = %+v", resp)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
