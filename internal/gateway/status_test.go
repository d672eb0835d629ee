package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStatus(t *testing.T) {
	t.Parallel()

	exec := runningController(2, 2)
	exec.stats.Delivered = 42
	g := handlerGateway(exec, nil)
	g.startedAt = time.Now().Add(-90 * time.Second)
	next := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.scheduler = fakeScheduler{"stats_snapshot": next}
	g.metrics.RecordRequest()

	rr := httptest.NewRecorder()
	g.handleStatus().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Uptime < 90 {
		t.Errorf("uptime = %d, want >= 90", resp.Uptime)
	}
	if resp.Executor == nil || resp.Executor.Delivered != 42 {
		t.Errorf("executor = %+v", resp.Executor)
	}
	if resp.Gateway.Requests != 1 {
		t.Errorf("requests = %d, want 1", resp.Gateway.Requests)
	}
	if got := resp.Cron["stats_snapshot"]; !got.Equal(next) {
		t.Errorf("cron next = %v, want %v", got, next)
	}
}

func TestStatus_NoServices(t *testing.T) {
	t.Parallel()

	g := handlerGateway(nil, nil)
	rr := httptest.NewRecorder()
	g.handleStatus().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Executor != nil {
		t.Errorf("executor = %+v, want nil", resp.Executor)
	}
	if resp.Cron != nil {
		t.Errorf("cron = %v, want nil", resp.Cron)
	}
}
