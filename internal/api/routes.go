// Package api exposes the KPI rollup engine over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes builds the router. health may be nil.
func SetupRoutes(h *Handlers, health *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Job-ID"},
		MaxAge:         300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/tenants/{tenantID}", func(r chi.Router) {
		r.Route("/kpis/{metricCode}", func(r chi.Router) {
			r.Get("/weekly", h.GetWeekly)
			r.Post("/weekly", h.RollupWeek)
			r.Get("/monthly", h.GetMonthly)
			r.Post("/monthly", h.RollupMonth)
			r.Get("/trend", h.GetTrend)
			r.Post("/recalculate", h.Recalculate)
		})
		r.Post("/aggregate/weekly", h.AggregateWeekly)
		r.Post("/aggregate/monthly", h.AggregateMonthly)
		r.Post("/auto-aggregate", h.AutoAggregate)
		r.Get("/aggregation-status", h.AggregationStatus)
	})

	return r
}
