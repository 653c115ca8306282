package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Operational endpoints stay outside the gateway: probes and
	// scrapers carry no session and stay out of the access log.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Everything else passes through the session gateway. The gateway
	// classifies the path, resolves session and profile, and either
	// admits the request or redirects before a handler runs. Access
	// logging sits inside it so each line carries the resolved caller.
	r.Group(func(r chi.Router) {
		r.Use(s.gateway.Handler)
		r.Use(s.loggingMiddleware)

		// Auth endpoints (public route class; handlers enforce their
		// own requirements on the resolved identity).
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/register", s.handleRegister)
			r.Post("/logout", s.handleLogout)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/me", s.handleMe)
			r.Put("/password", s.handleUpdatePassword)
			r.Post("/ws-ticket", s.handleWSTicket)
		})

		// Profile endpoints for the signed-in caller.
		r.Route("/profile", func(r chi.Router) {
			r.Get("/", s.handleGetProfile)
			r.Patch("/", s.handleUpdateProfile)
		})

		// Staff management (admin-restricted via /users route config).
		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetUser)
				r.Patch("/", s.handleUpdateUser)
				r.Delete("/", s.handleDeleteUser)
			})
		})

		// Audit log (admin-restricted via /admin route config).
		r.Get("/admin/audit", s.handleListAudit)

		// Application shell pages. The gateway has already decided
		// access; these return the page payload for the client shell.
		r.Get("/", s.handlePage("home"))
		r.Get("/login", s.handlePage("login"))
		r.Get("/register", s.handlePage("register"))
		r.Get("/reset-password", s.handlePage("reset-password"))
		r.Get("/dashboard", s.handlePage("dashboard"))
		r.Get("/patients", s.handlePage("patients"))
		r.Get("/appointments", s.handlePage("appointments"))
		r.Get("/reports", s.handlePage("reports"))
		r.Get("/analytics", s.handlePage("analytics"))
		r.Get("/admin", s.handlePage("admin"))
		r.Get("/settings", s.handlePage("settings"))

		// WebSocket session events (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)
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
