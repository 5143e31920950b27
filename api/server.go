/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus counter + latency histogram
  5. CORS:       Cross-origin requests for the SPA frontend

ROUTE GROUPS:
  /api/cycles/*       Cycle lifecycle and validation queue
  /api/influencers/*  Registry, plan board, dashboard
  /api/plans/*        Plan status transitions
  /api/sales/*        Sale CRUD and bulk import
  /api/scripts/*      Content script registry
  /api/sku-rules      SKU point rules
  /metrics            Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Role", "X-Influencer-Id"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Cycle routes
		r.Route("/cycles", func(r chi.Router) {
			r.Get("/", h.ListCycles)
			r.Post("/current", h.GetCurrentCycle)
			r.Post("/{id}/close", h.CloseCycle)
			r.Get("/{id}/pending-validations", h.ListPendingValidations)
		})

		// Influencer routes
		r.Route("/influencers", func(r chi.Router) {
			r.Get("/", h.ListInfluencers)
			r.Post("/", h.CreateInfluencer)
			r.Get("/{id}", h.GetInfluencer)
			r.Get("/{id}/plan", h.GetInfluencerPlan)
			r.Put("/{id}/plan", h.UpsertInfluencerPlan)
			r.Get("/{id}/dashboard", h.GetInfluencerDashboard)
		})

		// Plan transition routes
		r.Route("/plans", func(r chi.Router) {
			r.Post("/{id}/post", h.PostPlan)
			r.Post("/{id}/approve", h.ApprovePlan)
			r.Post("/{id}/reject", h.RejectPlan)
		})

		// Sales routes
		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.ListSales)
			r.Post("/", h.CreateSale)
			r.Put("/{id}", h.UpdateSale)
			r.Delete("/{id}", h.DeleteSale)
			r.Post("/import/preview", h.PreviewSalesImport)
			r.Post("/import/confirm", h.ConfirmSalesImport)
		})

		// Script routes
		r.Route("/scripts", func(r chi.Router) {
			r.Get("/", h.ListScripts)
			r.Post("/", h.CreateScript)
			r.Get("/{id}", h.GetScript)
		})

		// SKU rule routes
		r.Route("/sku-rules", func(r chi.Router) {
			r.Get("/", h.ListSkuRules)
			r.Put("/", h.UpsertSkuRule)
		})
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
