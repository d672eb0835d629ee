package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/flemzord/batchexec/internal/core"
	"github.com/flemzord/batchexec/internal/ledger"
	"github.com/go-chi/chi/v5"
)

const defaultRunsLimit = 20

// handleWorkers lists the executor's workers.
func (g *Gateway) handleWorkers() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.exec == nil {
			http.Error(w, "executor not available", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, g.exec.Workers())
	}
}

// handleReset abandons the current session: queued results are flushed and
// in-flight results will be discarded as stale.
func (g *Gateway) handleReset() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.exec == nil {
			http.Error(w, "executor not available", http.StatusServiceUnavailable)
			return
		}
		g.exec.Reset()
		g.metrics.RecordReset()
		s := g.exec.Stats()
		g.logger.Info("session reset through gateway", "session", s.Session)
		writeJSON(w, http.StatusOK, map[string]int64{"session": s.Session})
	}
}

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleModules lists all compiled modules.
func (g *Gateway) handleModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleListRuns lists recent runs from the ledger. ?limit=N bounds the
// result (default 20).
func (g *Gateway) handleListRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.runs == nil {
			http.Error(w, "ledger not available", http.StatusServiceUnavailable)
			return
		}

		limit := defaultRunsLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		runs, err := g.runs.Runs(r.Context(), limit)
		if err != nil {
			g.logger.Error("listing runs", "error", err)
			http.Error(w, "failed to list runs", http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []ledger.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// runDetail is the JSON response for GET /api/runs/{id}.
type runDetail struct {
	ledger.Run
	EpochLog  []ledger.Epoch    `json:"epoch_log"`
	Snapshots []ledger.Snapshot `json:"snapshots"`
}

// handleGetRun returns a run with its epochs and latest snapshots.
func (g *Gateway) handleGetRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.runs == nil {
			http.Error(w, "ledger not available", http.StatusServiceUnavailable)
			return
		}

		id := chi.URLParam(r, "id")
		run, err := g.runs.Run(r.Context(), id)
		if errors.Is(err, ledger.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		if err != nil {
			g.logger.Error("loading run", "run", id, "error", err)
			http.Error(w, "failed to load run", http.StatusInternalServerError)
			return
		}

		detail := runDetail{Run: run}
		if detail.EpochLog, err = g.runs.Epochs(r.Context(), id); err != nil {
			http.Error(w, "failed to load epochs", http.StatusInternalServerError)
			return
		}
		if detail.Snapshots, err = g.runs.Snapshots(r.Context(), id, defaultRunsLimit); err != nil {
			http.Error(w, "failed to load snapshots", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
