package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Broker authorization hook. No JWT: the broker calls this on a
		// trusted network path for every publish/subscribe attempt.
		r.Post("/broker/acls", s.handleBrokerACL)

		// Operator routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/teams/{teamID}", func(r chi.Router) {
				r.Get("/audit", s.handleListAudit)

				r.Route("/devices/{deviceID}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Post("/commands", s.handleDeviceCommand)
					r.Put("/editor", s.handleEditorMode)
					r.Get("/logs", s.handleDeviceLogs)
				})

				r.Route("/projects/{projectID}", func(r chi.Router) {
					r.Post("/commands", s.handleProjectCommand)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
