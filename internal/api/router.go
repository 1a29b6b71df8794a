package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docsmith-platform/docsmith/internal/database"
	"github.com/docsmith-platform/docsmith/internal/events"
	mw "github.com/docsmith-platform/docsmith/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Generation
	Generate http.HandlerFunc

	// Batch runs
	BatchStart    http.HandlerFunc
	BatchProgress http.HandlerFunc
	BatchCancel   http.HandlerFunc
	BatchResult   http.HandlerFunc
	BatchReset    http.HandlerFunc

	// Usage ledger
	GetUsage     http.HandlerFunc
	MigrateUsage http.HandlerFunc

	// Identity resolution: every /api/v1 route runs through this. Requests
	// without a bearer token become anonymous identities keyed by client IP.
	IdentityMiddleware func(http.Handler) http.Handler

	// RequireUser guards routes that make no sense for anonymous callers.
	RequireUser func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins  []string
	GenerateRateLimiter func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, eventsClient *events.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks DB and the event stream
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"events":   "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if eventsClient != nil && !eventsClient.Healthy() {
			health["events"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if eventsClient == nil {
			health["events"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.IdentityMiddleware)

		r.Group(func(r chi.Router) {
			if cfg.GenerateRateLimiter != nil {
				r.Use(cfg.GenerateRateLimiter)
			}
			r.Post("/generate", h.Generate)
		})

		r.Route("/batch", func(r chi.Router) {
			r.Post("/", h.BatchStart)
			r.Get("/progress", h.BatchProgress)
			r.Post("/cancel", h.BatchCancel)
			r.Get("/result", h.BatchResult)
			r.Post("/reset", h.BatchReset)
		})

		r.Route("/usage", func(r chi.Router) {
			r.Get("/", h.GetUsage)

			r.Group(func(r chi.Router) {
				r.Use(h.RequireUser)
				r.Post("/migrate", h.MigrateUsage)
			})
		})
	})

	return r
}
