// Package api provides the HTTP API for the zone AQI service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/breatheroute/zoneaqi/internal/api/handler"
	"github.com/breatheroute/zoneaqi/internal/api/middleware"
)

// ZoneService is what the router needs from the zone cache.
type ZoneService interface {
	handler.ZoneService
	handler.CacheReporter
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Service   ZoneService
	Providers handler.HealthReporter
	// Scheduler is optional; /ops/status omits scheduler state without it.
	Scheduler handler.SchedulerReporter
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "zoneaqi-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Cache:     cfg.Service,
		Providers: cfg.Providers,
		Scheduler: cfg.Scheduler,
	})
	zoneHandler := handler.NewZoneHandler(cfg.Service)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min
	refreshRateLimit := middleware.RateLimitWhen(forcedRefresh,
		middleware.RateLimitByIP(middleware.ExpensiveRateLimit)) // 30 req/min

	// Ops endpoints (public)
	r.Route("/ops", func(r chi.Router) {
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)
		r.Get("/status", opsHandler.SystemStatus)
	})

	r.Group(func(r chi.Router) {
		r.Use(standardRateLimit)
		r.Get("/zones", zoneHandler.ListZones)

		r.Route("/aqi", func(r chi.Router) {
			r.Use(refreshRateLimit)
			r.Get("/{zoneId}", zoneHandler.GetZoneAQI)
			r.Get("/zone/{zoneId}", zoneHandler.GetZoneAQI)
		})
	})

	return r
}

// forcedRefresh matches requests that bypass the zone cache.
func forcedRefresh(r *http.Request) bool {
	return r.URL.Query().Get("refresh") == "true"
}
