// Package main runs one refresh cycle over every configured zone and exits.
// It is meant for scheduled jobs that keep the reading log populated when
// no API instance is polling, and doubles as an upstream smoke check.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/breatheroute/zoneaqi/internal/app"
	"github.com/breatheroute/zoneaqi/internal/config"
	"github.com/breatheroute/zoneaqi/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	zones := flag.String("zones", "", "comma-separated zone ids to refresh (default: all)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, *zones))
}

func run(ctx context.Context, zoneList string) int {
	cfg, err := config.Load(ctx)
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Error().Err(err).Msg("invalid configuration")
		return 2
	}

	log := zerolog.New(os.Stdout).
		Level(cfg.Level()).
		With().
		Timestamp().
		Str("service", "zoneaqi-worker").
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting refresh run")

	components, err := app.Build(ctx, cfg, log, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to build zone service")
		return 2
	}
	defer func() {
		if closeErr := components.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close zone service")
		}
	}()

	var result *worker.CycleResult
	if ids := splitZones(zoneList); len(ids) > 0 {
		result = components.Scheduler.RefreshZones(ctx, ids)
	} else {
		result = components.Scheduler.RunCycle(ctx)
	}

	for _, zerr := range result.Errors {
		log.Warn().
			Str("zone_id", zerr.ZoneID).
			Str("provider", zerr.Provider).
			Str("error", zerr.Error).
			Msg("zone refresh failed")
	}

	if result.Zones > 0 && result.Refreshed == 0 {
		log.Error().Int("zones", result.Zones).Msg("no zone refreshed")
		return 1
	}
	return 0
}

func splitZones(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
