/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the fleet dashboard

ROUTE GROUPS:
  /api/ships/{shipId}/reports   Report intake per ship
  /api/reports/*                Report lifecycle by ID
  /api/dosing-events/*          Additive dosing producer
  /api/ships/{shipId}/ledger/*  ROB chain queries
  /api/scenarios/*              Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Per-ship report intake
		r.Route("/ships/{shipId}", func(r chi.Router) {
			r.Get("/reports", h.ListReports)
			r.Post("/reports", h.CreateReport)

			// ROB chain queries
			r.Route("/ledger/{kind}/{ref}", func(r chi.Router) {
				r.Get("/", h.GetLedgerHistory)
				r.Get("/availability", h.GetAvailability)
			})
		})

		// Report lifecycle
		r.Route("/reports", func(r chi.Router) {
			r.Get("/{id}", h.GetReport)
			r.Put("/{id}", h.UpdateReport)
			r.Post("/{id}/submit", h.SubmitReport)
			r.Delete("/{id}", h.DeleteReport)
		})

		// Additive dosing producer
		r.Route("/dosing-events", func(r chi.Router) {
			r.Post("/", h.PostDosingEvent)
			r.Get("/{id}/depletion", h.GetDepletionTimeline)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
