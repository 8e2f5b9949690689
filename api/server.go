/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/pricing-rules/*  Pricing rules and price computation
  /api/plans/*          Commission plans
  /api/agents/*         Agents, their ledger and invoicing
  /api/contracts/*      Contract lifecycle
  /api/invoices/*       Client invoices
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus scrape endpoint

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

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/pricing-rules", func(r chi.Router) {
			r.Get("/", h.ListPricingRules)
			r.Post("/", h.CreatePricingRule)
			r.Get("/{id}", h.GetPricingRule)
			r.Post("/{id}/price", h.ComputePrice)
			r.Get("/{id}/frequency-days", h.GetFrequencyDays)
		})

		r.Route("/plans", func(r chi.Router) {
			r.Get("/", h.ListPlans)
			r.Post("/", h.CreatePlan)
		})

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/", h.CreateAgent)
			r.Get("/{id}/commissions", h.GetAgentCommissions)
			r.Get("/{id}/prepayments", h.GetAgentPrepayments)
			r.Post("/{id}/invoice", h.InvoiceAgent)
		})

		r.Route("/contracts", func(r chi.Router) {
			r.Post("/", h.CreateContract)
			r.Post("/{id}/activate", h.ActivateContract)
			r.Post("/{id}/rebill", h.RebillContract)
			r.Post("/{id}/terminate", h.TerminateContract)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", h.CreateInvoice)
			r.Post("/{id}/cancel", h.CancelInvoice)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Handle("/metrics", h.Metrics.Handler())

	return r
}
