// Package main provides the entrypoint for the zone AQI API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/zoneaqi/internal/api"
	"github.com/breatheroute/zoneaqi/internal/api/middleware"
	"github.com/breatheroute/zoneaqi/internal/app"
	"github.com/breatheroute/zoneaqi/internal/config"
	"github.com/breatheroute/zoneaqi/internal/telemetry"
	"github.com/breatheroute/zoneaqi/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "zoneaqi-api"

	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("invalid configuration")
	}

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		Level(cfg.Level()).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Msg("starting zone AQI API")

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	zoneMetrics, err := telemetry.NewZoneMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize zone metrics")
	}

	components, err := app.Build(ctx, cfg, log, zoneMetrics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build zone service")
	}
	defer func() {
		if closeErr := components.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close zone service")
		}
	}()

	routerCfg := api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		RequireTLS:  cfg.RequireTLS,
		Service:     components.Service,
		Providers:   components.Registry,
	}

	// runCtx is cancelled on shutdown; it stops the scheduler and the subscriber.
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	if cfg.Refresh.Enabled {
		if err := components.Scheduler.Start(runCtx); err != nil {
			log.Fatal().Err(err).Msg("failed to start refresh scheduler")
		}
		routerCfg.Scheduler = components.Scheduler
	} else {
		log.Warn().Msg("background refresh disabled - zones refresh on request only")
	}

	subscriberDone := make(chan struct{})
	if cfg.PubSub.Enabled() {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Scheduler:        components.Scheduler,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		go func() {
			defer close(subscriberDone)
			defer func() { _ = handler.Close() }()
			if err := handler.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub subscriber stopped")
			}
		}()
	} else {
		close(subscriberDone)
	}

	// Create HTTP server
	server := newServer(cfg, api.NewRouter(routerCfg))

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopRun()
	components.Scheduler.Stop()
	<-subscriberDone

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// newServer leaves forced refreshes enough write time to finish one zone.
func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Refresh.ZoneTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
