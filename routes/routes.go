package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/payment-control-plane/app"
	"github.com/upb/payment-control-plane/handlers"
	"github.com/upb/payment-control-plane/middleware"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Correlation)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.CorrelationHeader},
		ExposedHeaders:   []string{"X-Request-ID", middleware.CorrelationHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	health := handlers.NewHealthHandler(db, deps.Logger).
		WithCheck("audit", deps.AuditReady)
	payments := handlers.NewPaymentHandler(deps.Authorization, deps.Fusion, deps.Settlement, deps.SpeculativePaths, deps.Logger)
	ledger := handlers.NewLedgerHandler(deps.Ledger, deps.Logger)
	reports := handlers.NewReportHandler(handlers.ReportSources{
		History:     deps.Repos.History,
		Routes:      deps.Routing,
		DeadLetters: deps.Authorization,
		Audit:       deps.Audit,
	}, deps.Logger)
	policies := handlers.NewPolicyHandler(deps.Policies, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			r.Post("/authorize", payments.HandleAuthorize)
			r.Post("/settle", payments.HandleSettle)
			r.Post("/speculate", payments.HandleSpeculate)
			r.Get("/{id}", payments.HandleGetPayment)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/accounts", ledger.HandleListAccounts)
			r.Get("/accounts/{accountID}", ledger.HandleGetAccount)
			r.Get("/journal/{correlationID}", ledger.HandleJournal)
		})

		r.Get("/tx/history", reports.HandleHistory)
		r.Get("/routing/routes", reports.HandleRoutes)
		r.Get("/dead-letters", reports.HandleDeadLetters)
		r.Get("/audit/{correlationID}", reports.HandleAuditTrail)

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", policies.HandleListPolicies)
			r.Post("/", policies.HandleImportPolicy)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
