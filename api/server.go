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
  4. CORS:       Cross-origin requests for frontend
  5. Actor:      Requires X-Actor-ID on mutating requests

ROUTE GROUPS:
  /api/magazines/*        Magazine catalog, capacity and stock
  /api/products/*         Product catalog, compatibility and stock
  /api/transactions/*     Ledger movements
  /api/stock/*            Derived balances
  /api/reconciliations/*  Physical-count workflow
  /api/audit              Audit trail
  /api/scenarios/*        Demo data
  /api/reset              Database reset (dev only)

ACTOR IDENTITY:
  Every POST/PUT/DELETE must carry an X-Actor-ID header naming the acting
  user. Identity is an opaque string; authenticating it is out of scope
  and belongs in a gateway in front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// requireActor injects the X-Actor-ID header into the request context and
// rejects mutating requests that omit it. Reads pass through untagged.
func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get("X-Actor-ID")
		if actor == "" && r.Method != http.MethodGet && r.Method != http.MethodOptions {
			writeError(w, http.StatusBadRequest, "X-Actor-ID header is required", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(requireActor)

		// Magazine routes
		r.Route("/magazines", func(r chi.Router) {
			r.Get("/", h.ListMagazines)
			r.Post("/", h.CreateMagazine)
			r.Get("/{id}", h.GetMagazine)
			r.Put("/{id}", h.UpdateMagazine)
			r.Delete("/{id}", h.DeleteMagazine)
			r.Post("/{id}/archive", h.ArchiveMagazine)
			r.Get("/{id}/capacity", h.GetMagazineCapacity)
			r.Post("/{id}/capacity/validate", h.ValidateMagazineCapacity)
			r.Get("/{id}/stock", h.GetMagazineStock)
		})

		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
			r.Post("/{id}/archive", h.ArchiveProduct)
			r.Get("/{id}/stock", h.GetProductStock)
			r.Post("/{id}/compatibility/validate", h.ValidateProductCompatibility)
		})

		// Transaction routes (one endpoint per movement kind)
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Get("/{id}", h.GetTransaction)
			r.Post("/receipts", h.CreateReceipt)
			r.Post("/issues", h.CreateIssue)
			r.Post("/transfers", h.CreateTransfer)
			r.Post("/adjustments", h.CreateAdjustment)
			r.Post("/destructions", h.CreateDestruction)
		})

		// Stock routes
		r.Get("/stock/{magazineID}/{productID}", h.GetStock)

		// Reconciliation routes
		r.Route("/reconciliations", func(r chi.Router) {
			r.Get("/", h.ListReconciliations)
			r.Post("/", h.CreateReconciliation)
			r.Get("/report", h.GetReconciliationReport)
			r.Post("/preview", h.PreviewReconciliation)
			r.Get("/{id}", h.GetReconciliation)
			r.Post("/{id}/resolve", h.ResolveReconciliation)
		})

		// Audit routes
		r.Get("/audit", h.ListAudit)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Post("/load", h.LoadScenario)
		})
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
