package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-ism7/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(bodyLimit)

	// Prometheus scrape endpoint (no auth, like most exporters)
	r.Get("/metrics", s.handlePrometheus)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket (auth via ticket or token, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.With(s.requirePermission(auth.PermSystemRead)).Get("/metrics", s.handleMetrics)

			r.Route("/devices", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermParameterRead))
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Get("/parameters", s.handleListParameters)
					r.With(s.requirePermission(auth.PermHistoryRead)).Get("/writes", s.handleWriteHistory)

					r.Route("/parameters/{ptid}", func(r chi.Router) {
						r.Get("/", s.handleGetParameter)
						r.With(s.requirePermission(auth.PermParameterWrite)).Put("/", s.handleWriteParameter)
						r.With(s.requirePermission(auth.PermHistoryRead)).Get("/history", s.handleReadingHistory)
					})
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	m := s.bridge.GetMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"bridge":  m.Status,
		"mqtt":    m.Connected,
	})
}

// handlePrometheus serves the Prometheus exposition format.
func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "metrics are not enabled")
		return
	}
	s.metrics.ServeHTTP(w, r)
}
