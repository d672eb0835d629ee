package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.countRequests)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}

	// Admin endpoints, auth required. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.logger))
			r.Get("/status", g.handleStatus())
			r.Get("/ws/stats", g.handleStatsStream())
			r.Route("/api", func(r chi.Router) {
				r.Get("/workers", g.handleWorkers())
				r.Post("/reset", g.handleReset())
				r.Get("/modules", g.handleModules())
				r.Get("/runs", g.handleListRuns())
				r.Get("/runs/{id}", g.handleGetRun())
			})
		})
	}

	return r
}

func (g *Gateway) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.metrics.RecordRequest()
		next.ServeHTTP(w, r)
	})
}
