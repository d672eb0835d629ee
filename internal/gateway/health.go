package gateway

import (
	"net/http"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status       string `json:"status"` // "ok" or "degraded"
	Executor     string `json:"executor,omitempty"`
	Workers      int    `json:"workers"`
	WorkersAlive int    `json:"workers_alive"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 while every worker of a running executor is alive, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}

		if g.exec != nil {
			s := g.exec.Stats()
			resp.Executor = s.Status
			resp.Workers = s.Workers
			resp.WorkersAlive = s.WorkersAlive
			if s.Status == "running" && s.WorkersAlive < s.Workers {
				resp.Status = "degraded"
			}
		}

		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
