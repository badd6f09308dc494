// Package app assembles the zone service from configuration. Both the API
// server and the worker build their dependencies through it.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/breatheroute/zoneaqi/internal/airquality"
	"github.com/breatheroute/zoneaqi/internal/airquality/openaq"
	"github.com/breatheroute/zoneaqi/internal/airquality/openmeteo"
	"github.com/breatheroute/zoneaqi/internal/airquality/purpleair"
	"github.com/breatheroute/zoneaqi/internal/config"
	"github.com/breatheroute/zoneaqi/internal/provider/resilience"
	"github.com/breatheroute/zoneaqi/internal/readinglog"
	"github.com/breatheroute/zoneaqi/internal/telemetry"
	"github.com/breatheroute/zoneaqi/internal/worker"
)

// Components are the long-lived parts shared by every entrypoint.
type Components struct {
	Service   *airquality.Service
	Registry  *resilience.Registry
	Scheduler *worker.Scheduler
	Store     readinglog.Store
}

// Build wires sources, the zone cache and the scheduler. Metrics may be
// nil. The caller owns Close.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, metrics *telemetry.ZoneMetrics) (*Components, error) {
	calc, err := cfg.Calculator()
	if err != nil {
		return nil, err
	}

	store, err := readinglog.NewStore(ctx, cfg.History.ReadingLog())
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}

	registry := resilience.NewRegistry()
	httpClient := func(name string) *resilience.Client {
		return resilience.NewClient(resilience.ClientConfig{
			Name:       name,
			Timeout:    cfg.Providers.HTTPTimeout,
			MaxRetries: uint64(cfg.Providers.HTTPMaxRetries),
			Registry:   registry,
			Logger:     log,
		})
	}

	meteo := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL:    cfg.Providers.OpenMeteoBaseURL,
		HTTPClient: httpClient(openmeteo.ProviderName),
	})
	stations := openaq.NewClient(openaq.ClientConfig{
		BaseURL:    cfg.Providers.OpenAQBaseURL,
		APIKey:     cfg.Providers.OpenAQAPIKey,
		HTTPClient: httpClient(openaq.ProviderName),
		Supplement: meteo,
		Logger:     log,
	})
	sensors := purpleair.NewClient(purpleair.ClientConfig{
		BaseURL:    cfg.Providers.PurpleAirBaseURL,
		APIKey:     cfg.Providers.PurpleAirAPIKey,
		HTTPClient: httpClient(purpleair.ProviderName),
		Log:        store,
		Logger:     log,
	})

	if cfg.Providers.OpenAQAPIKey == "" && usesProvider(cfg.Zones, openaq.ProviderName) {
		log.Warn().Msg("OPENAQ_API_KEY not set - openaq zones will fail")
	}
	if cfg.Providers.PurpleAirAPIKey == "" && usesProvider(cfg.Zones, purpleair.ProviderName) {
		log.Warn().Msg("PURPLEAIR_API_KEY not set - purpleair zones will fail")
	}

	service := airquality.NewService(airquality.ServiceConfig{
		Zones:          cfg.Zones,
		Sources:        []airquality.Source{meteo, stations, sensors},
		Calculator:     calc,
		Logger:         log,
		Metrics:        metrics,
		CacheTTL:       cfg.CacheTTL,
		RefreshTimeout: cfg.Refresh.ZoneTimeout,
	})

	scheduler := worker.NewScheduler(worker.SchedulerDeps{
		Config: worker.SchedulerConfig{
			Interval:    cfg.Refresh.Interval,
			ZoneDelay:   cfg.Refresh.ZoneDelay,
			ZoneTimeout: cfg.Refresh.ZoneTimeout,
		},
		Refresher: service,
		Logger:    log,
		Metrics:   metrics,
	})

	log.Info().
		Int("zones", len(service.Zones())).
		Str("aqi_profile", calc.Profile()).
		Str("history_backend", cfg.History.Backend).
		Dur("cache_ttl", service.CacheTTL()).
		Msg("zone service initialized")

	return &Components{
		Service:   service,
		Registry:  registry,
		Scheduler: scheduler,
		Store:     store,
	}, nil
}

// Close stops the scheduler and releases the reading log.
func (c *Components) Close() error {
	c.Scheduler.Stop()
	return c.Store.Close()
}

func usesProvider(zones []airquality.Zone, provider string) bool {
	for _, z := range zones {
		if z.Provider == provider {
			return true
		}
	}
	return false
}
