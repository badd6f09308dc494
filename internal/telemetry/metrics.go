package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Lookup outcomes recorded by ZoneMetrics.
const (
	OutcomeHit       = "hit"
	OutcomeRefreshed = "refreshed"
	OutcomeStale     = "stale"
	OutcomeError     = "error"
)

// ZoneMetrics holds the instruments for the zone cache and the refresh
// scheduler. A nil *ZoneMetrics records nothing.
type ZoneMetrics struct {
	lookups         metric.Int64Counter
	refreshDuration metric.Float64Histogram
	droppedBuckets  metric.Int64Counter
	cycleDuration   metric.Float64Histogram
	cycleZones      metric.Int64Counter
}

// NewZoneMetrics creates the instruments on meter.
func NewZoneMetrics(meter metric.Meter) (*ZoneMetrics, error) {
	lookups, err := meter.Int64Counter(
		"zoneaqi.cache.lookups",
		metric.WithDescription("Zone cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	refreshDuration, err := meter.Float64Histogram(
		"zoneaqi.refresh.duration",
		metric.WithDescription("Duration of zone refreshes against upstream providers"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	droppedBuckets, err := meter.Int64Counter(
		"zoneaqi.history.dropped_buckets",
		metric.WithDescription("History buckets dropped because no index could be computed"),
		metric.WithUnit("{bucket}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"zoneaqi.scheduler.cycle.duration",
		metric.WithDescription("Duration of scheduled refresh cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	cycleZones, err := meter.Int64Counter(
		"zoneaqi.scheduler.zones",
		metric.WithDescription("Zones processed by scheduled refresh cycles, by result"),
		metric.WithUnit("{zone}"),
	)
	if err != nil {
		return nil, err
	}

	return &ZoneMetrics{
		lookups:         lookups,
		refreshDuration: refreshDuration,
		droppedBuckets:  droppedBuckets,
		cycleDuration:   cycleDuration,
		cycleZones:      cycleZones,
	}, nil
}

// RecordLookup counts one cache lookup.
func (m *ZoneMetrics) RecordLookup(ctx context.Context, zoneID, outcome string) {
	if m == nil {
		return
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("zone.id", zoneID),
		attribute.String("cache.outcome", outcome),
	))
}

// RecordRefresh records the duration of one upstream refresh.
func (m *ZoneMetrics) RecordRefresh(ctx context.Context, zoneID, provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("zone.id", zoneID),
		attribute.String("provider.name", provider),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}
	m.refreshDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// RecordDroppedBuckets counts history buckets that failed aggregation.
func (m *ZoneMetrics) RecordDroppedBuckets(ctx context.Context, zoneID string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.droppedBuckets.Add(ctx, int64(n), metric.WithAttributes(attribute.String("zone.id", zoneID)))
}

// RecordCycle records one scheduler cycle.
func (m *ZoneMetrics) RecordCycle(ctx context.Context, d time.Duration, refreshed, stale, failed int) {
	if m == nil {
		return
	}
	m.cycleDuration.Record(ctx, d.Seconds())
	m.cycleZones.Add(ctx, int64(refreshed), metric.WithAttributes(attribute.String("result", "refreshed")))
	m.cycleZones.Add(ctx, int64(stale), metric.WithAttributes(attribute.String("result", "stale")))
	m.cycleZones.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("result", "failed")))
}
