package worker

import (
	"context"
	"time"

	"github.com/breatheroute/zoneaqi/internal/airquality"
)

// Refresher is the zone cache the scheduler keeps warm.
type Refresher interface {
	Zones() []airquality.Zone
	Get(ctx context.Context, zoneID string, forceRefresh bool) (*airquality.Entry, airquality.Outcome, error)
}

// CycleResult contains the result of one refresh cycle.
type CycleResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Zones     int
	Refreshed int
	Stale     int
	Failed    int
	Errors    []ZoneError

	// Cancelled is set when the cycle stopped before visiting every zone.
	Cancelled bool
}

// ZoneError represents a failed zone refresh.
type ZoneError struct {
	ZoneID   string
	Provider string
	Error    string
}

// SchedulerMetrics tracks refresh statistics across cycles.
type SchedulerMetrics struct {
	Cycles          int64
	ZonesRefreshed  int64
	ZonesStale      int64
	ZonesFailed     int64
	CancelledCycles int64

	LastCycleAt       time.Time
	LastCycleDuration time.Duration
	TotalDuration     time.Duration
	LastErrors        []ZoneError
}

// RunCycle force-refreshes every zone once, in configuration order,
// pausing ZoneDelay between zones. Cancelling ctx interrupts the pause
// and skips the remaining zones; a zone refresh already in flight runs
// to completion. The result is counted in Metrics.
func (s *Scheduler) RunCycle(ctx context.Context) *CycleResult {
	zones := s.refresher.Zones()

	s.logger.Info().
		Int("zones", len(zones)).
		Msg("starting zone refresh cycle")

	result := s.runPass(ctx, zones)

	s.updateMetrics(result)
	s.metrics.RecordCycle(context.WithoutCancel(ctx), result.Duration, result.Refreshed, result.Stale, result.Failed)

	s.logger.Info().
		Dur("duration", result.Duration).
		Int("refreshed", result.Refreshed).
		Int("stale", result.Stale).
		Int("failed", result.Failed).
		Bool("cancelled", result.Cancelled).
		Msg("zone refresh cycle completed")

	return result
}

// RefreshAll runs an on-demand pass over every zone. It paces like
// RunCycle but is not counted in Metrics.
func (s *Scheduler) RefreshAll(ctx context.Context) *CycleResult {
	return s.runPass(ctx, s.refresher.Zones())
}

// RefreshZones force-refreshes the given zones in order, pausing
// ZoneDelay between them. It is not counted in Metrics.
func (s *Scheduler) RefreshZones(ctx context.Context, zoneIDs []string) *CycleResult {
	configured := make(map[string]airquality.Zone)
	for _, z := range s.refresher.Zones() {
		configured[z.ID] = z
	}
	zones := make([]airquality.Zone, 0, len(zoneIDs))
	for _, id := range zoneIDs {
		zone, ok := configured[id]
		if !ok {
			zone = airquality.Zone{ID: id}
		}
		zones = append(zones, zone)
	}
	return s.runPass(ctx, zones)
}

// runPass refreshes zones one by one. Passes never overlap: a pass waits
// for the running one, scheduled or on-demand, to finish.
func (s *Scheduler) runPass(ctx context.Context, zones []airquality.Zone) *CycleResult {
	result := &CycleResult{StartTime: s.now(), Zones: len(zones)}

	select {
	case s.passLock <- struct{}{}:
		defer func() { <-s.passLock }()
	case <-ctx.Done():
		result.Cancelled = true
		result.EndTime = s.now()
		return result
	}

	for i, zone := range zones {
		if i > 0 && !s.pause(ctx) {
			result.Cancelled = true
			break
		}
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		outcome, err := s.refreshZone(ctx, zone)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, ZoneError{
				ZoneID:   zone.ID,
				Provider: zone.Provider,
				Error:    err.Error(),
			})
		case outcome == airquality.OutcomeStale:
			result.Stale++
		default:
			result.Refreshed++
		}
	}

	result.EndTime = s.now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	return result
}

func (s *Scheduler) unknownZones(ids []string) []string {
	known := make(map[string]bool)
	for _, z := range s.refresher.Zones() {
		known[z.ID] = true
	}
	var unknown []string
	for _, id := range ids {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	return unknown
}

// refreshZone runs one forced refresh on a context detached from ctx so
// shutdown does not abort a half-done refresh.
func (s *Scheduler) refreshZone(ctx context.Context, zone airquality.Zone) (airquality.Outcome, error) {
	zoneCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ZoneTimeout)
	defer cancel()

	_, outcome, err := s.refresher.Get(zoneCtx, zone.ID, true)
	if err != nil {
		s.logger.Error().Err(err).
			Str("zone_id", zone.ID).
			Msg("zone refresh failed")
		return outcome, err
	}
	if outcome == airquality.OutcomeStale {
		s.logger.Warn().
			Str("zone_id", zone.ID).
			Msg("zone refresh kept stale entry")
	}
	return outcome, nil
}

// pause waits ZoneDelay and reports false if ctx was cancelled first.
func (s *Scheduler) pause(ctx context.Context) bool {
	if s.config.ZoneDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(s.config.ZoneDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) updateMetrics(result *CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Cycles++
	s.stats.ZonesRefreshed += int64(result.Refreshed)
	s.stats.ZonesStale += int64(result.Stale)
	s.stats.ZonesFailed += int64(result.Failed)
	if result.Cancelled {
		s.stats.CancelledCycles++
	}
	s.stats.LastCycleAt = result.EndTime
	s.stats.LastCycleDuration = result.Duration
	s.stats.TotalDuration += result.Duration
	s.stats.LastErrors = append([]ZoneError(nil), result.Errors...)
}

// Metrics returns a copy of the current metrics.
func (s *Scheduler) Metrics() SchedulerMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.stats
	m.LastErrors = append([]ZoneError(nil), s.stats.LastErrors...)
	return m
}
