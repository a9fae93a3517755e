package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.middlewares()...)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Method(http.MethodGet, "/metrics/prometheus", s.prometheusHandler())
		r.Get("/discovery", s.handleListDiscovery)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{serial}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/history", s.handleGetDeviceHistory)
				r.Post("/refresh", s.handleRefreshDevice)
				r.Put("/state", s.handleSetDeviceState)
				r.Post("/toggle/{control}", s.handleToggleDevice)
			})
		})
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}

// handleHealth returns the server health status with device counts.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"devices":   stats.TotalDevices,
		"connected": stats.ConnectedDevices,
	})
}
