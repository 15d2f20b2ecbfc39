/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     One structured zap line per request
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard

ACCESS:
  /health and /api/auth/login are public. Everything else runs behind
  authenticate; decision, listing, directory, grant and calendar routes
  add requireRole(admin, hr). User creation and password reset require
  admin. Ownership checks for single requests live in the leave package.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: authenticate, requireRole, requestLogger
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/leave-ledger/leave"
)

var defaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	origins := h.opts.CORSOrigins
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	deciders := requireRole(leave.RoleAdmin, leave.RoleHR)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			// Auth routes
			r.Post("/auth/logout", h.Logout)
			r.Get("/auth/me", h.Me)

			// User routes
			r.With(deciders).Get("/users", h.ListUsers)
			r.With(requireRole(leave.RoleAdmin)).Post("/users", h.CreateUser)
			r.With(requireRole(leave.RoleAdmin)).Post("/users/{id}/password", h.ResetPassword)

			// Leave routes
			r.Route("/leaves", func(r chi.Router) {
				r.Post("/", h.SubmitLeave)
				r.With(deciders).Get("/", h.ListLeaves)
				r.With(deciders).Get("/report.pdf", h.LeaveReport)
				r.Get("/mine", h.MyLeaves)
				r.Get("/{id}", h.GetLeave)
				r.With(deciders).Get("/{id}/history", h.LeaveHistory)
				r.With(deciders).Post("/{id}/approve", h.Approve)
				r.With(deciders).Post("/{id}/reject", h.Reject)
				r.Post("/{id}/cancel", h.Cancel)
			})

			// Balance routes
			r.Route("/balances", func(r chi.Router) {
				r.Get("/me", h.MyBalance)
				r.With(deciders).Get("/{employeeID}", h.GetBalance)
				r.With(deciders).Post("/{employeeID}/grant", h.Grant)
			})

			// Holiday routes
			r.Route("/holidays", func(r chi.Router) {
				r.Get("/", h.ListHolidays)
				r.With(deciders).Post("/", h.CreateHoliday)
				r.With(deciders).Delete("/{id}", h.DeleteHoliday)
			})
		})
	})

	return r
}
