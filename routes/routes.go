package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upb/market-gateway/app"
	"github.com/upb/market-gateway/handlers"
	"github.com/upb/market-gateway/middleware"
	"github.com/upb/market-gateway/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
		r.Use(chimiddleware.Timeout(timeout))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.Config.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	health := handlers.NewHealthHandler(deps.HealthChecks(), deps.Logger)
	tickers := handlers.NewTickerHandler(deps.Aggregator, deps.Logger)
	stats := handlers.NewStatsHandler(deps.Stats, deps.Logger)
	ttl := handlers.NewTTLHandler(deps.Config.ClientTTL, deps.Logger)

	// Health check endpoints
	r.Get("/health", health.HandleHealth)
	r.Get("/ready", health.HandleReadiness)

	if deps.MetricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tickers", func(r chi.Router) {
			r.Get("/search", tickers.HandleSearch)
			r.Post("/news", tickers.HandleNews)
			r.Post("/info", tickers.HandleInfo)
		})

		r.Get("/ttl/client", ttl.HandleClientTTL)

		r.Route("/stats", func(r chi.Router) {
			r.Get("/", stats.HandleCurrent)
			r.Get("/{month}", stats.HandleMonth)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
