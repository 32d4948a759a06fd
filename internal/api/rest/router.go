package rest

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidleathers/barangay-insights/internal/infrastructure/telemetry"
)

// Config holds API configuration
type Config struct {
	Logger *slog.Logger
	// Registry receives the HTTP collectors and backs /metrics. Nil
	// disables both.
	Registry          *prometheus.Registry
	EnableTracing     bool
	RequestsPerSecond int
	Burst             int
	Health            *HealthService
}

// NewRouter wires the routes behind the middleware chain. The chain wraps
// each route rather than the mux so metrics see the matched pattern.
func NewRouter(h *Handler, cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	middlewares := []Middleware{
		RecoveryMiddleware(logger),
		SecurityHeadersMiddleware(),
		RequestIDMiddleware(),
		RequestLoggingMiddleware(logger),
	}
	if cfg.Registry != nil {
		middlewares = append(middlewares, MetricsMiddleware(cfg.Registry))
	}
	if cfg.EnableTracing {
		middlewares = append(middlewares, TracingMiddleware(telemetry.Tracer("api.rest")))
	}
	if cfg.RequestsPerSecond > 0 {
		middlewares = append(middlewares, NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst).Middleware())
	}
	chain := NewMiddlewareChain(middlewares...)

	mux := http.NewServeMux()
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, chain.Then(fn))
	}

	route("GET /analytics", h.handleAnalytics)
	route("POST /predictions", h.handlePredictions)

	route("GET /api/v1/dashboard/charts/{metric}", h.handleChart)
	route("POST /api/v1/dashboard/insights/{metric}", h.handleAnalyze)
	route("GET /api/v1/dashboard/insights/{metric}", h.handleLatestInsight)
	route("DELETE /api/v1/dashboard/session", h.handleResetSession)

	if cfg.Health != nil {
		mux.Handle("GET /health", cfg.Health.Handler())
	}
	if cfg.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{Registry: cfg.Registry}))
	}
	return mux
}
