package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/batchexec/internal/executor"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime   int64                `json:"uptime_seconds"`
	Gateway  MetricsSnapshot      `json:"gateway"`
	Executor *executor.Stats      `json:"executor,omitempty"`
	Cron     map[string]time.Time `json:"cron,omitempty"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:  int64(time.Since(g.startedAt).Seconds()),
			Gateway: g.metrics.Snapshot(),
		}

		if g.exec != nil {
			s := g.exec.Stats()
			resp.Executor = &s
		}
		if g.scheduler != nil {
			resp.Cron = g.scheduler.Next()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
