package airquality

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/breatheroute/zoneaqi/internal/aqi"
	"github.com/breatheroute/zoneaqi/internal/telemetry"
)

// Source fetches readings for the zones of one upstream provider.
type Source interface {
	// Name is the provider name zones select in their configuration.
	Name() string

	// FetchCurrent returns the latest reading. A failure aborts the
	// zone's refresh.
	FetchCurrent(ctx context.Context, zone Zone) (*Reading, error)

	// FetchHistory returns samples covering window. Series are merged in
	// order, so a later series wins when two report the same pollutant
	// for the same hour. Errors are tolerated by the caller.
	FetchHistory(ctx context.Context, zone Zone, window time.Duration) ([]aqi.Series, error)
}

// ServiceConfig holds configuration for the zone service.
type ServiceConfig struct {
	// Zones are the configured zones, in refresh order.
	Zones []Zone

	// Sources are the available upstream sources, matched by Name.
	Sources []Source

	// Calculator turns readings into an index.
	Calculator *aqi.Calculator

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics is optional.
	Metrics *telemetry.ZoneMetrics

	// CacheTTL is how long an entry is served without refreshing (default: 15 minutes).
	CacheTTL time.Duration

	// HistoryWindow is the trailing history span (default: 24 hours).
	HistoryWindow time.Duration

	// RefreshTimeout bounds one zone refresh including all upstream calls
	// (default: 60 seconds).
	RefreshTimeout time.Duration

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Service caches one entry per zone and refreshes it from the zone's source.
type Service struct {
	zones          []Zone
	byID           map[string]Zone
	sources        map[string]Source
	calc           *aqi.Calculator
	merger         *aqi.Merger
	logger         zerolog.Logger
	metrics        *telemetry.ZoneMetrics
	cacheTTL       time.Duration
	historyWindow  time.Duration
	refreshTimeout time.Duration
	now            func() time.Time

	// states is built once in NewService and only read afterwards.
	states map[string]*zoneState
}

// zoneState serializes refreshes of one zone. Readers load entry without
// taking mu.
type zoneState struct {
	mu    sync.Mutex
	entry atomic.Pointer[Entry]
}

// NewService creates a zone service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 15 * time.Minute
	}

	historyWindow := cfg.HistoryWindow
	if historyWindow == 0 {
		historyWindow = 24 * time.Hour
	}

	refreshTimeout := cfg.RefreshTimeout
	if refreshTimeout == 0 {
		refreshTimeout = 60 * time.Second
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	calc := cfg.Calculator
	if calc == nil {
		calc = aqi.NewCalculator(aqi.USEPA(), aqi.SaturateTopIndex)
	}

	s := &Service{
		zones:          make([]Zone, 0, len(cfg.Zones)),
		byID:           make(map[string]Zone, len(cfg.Zones)),
		sources:        make(map[string]Source, len(cfg.Sources)),
		calc:           calc,
		merger:         aqi.NewMerger(calc, aqi.MergerConfig{Window: historyWindow}),
		logger:         cfg.Logger.With().Str("component", "zone_cache").Logger(),
		metrics:        cfg.Metrics,
		cacheTTL:       cacheTTL,
		historyWindow:  historyWindow,
		refreshTimeout: refreshTimeout,
		now:            now,
		states:         make(map[string]*zoneState, len(cfg.Zones)),
	}

	for _, src := range cfg.Sources {
		s.sources[src.Name()] = src
	}
	for _, z := range cfg.Zones {
		if z.ZoneType == "" {
			z.ZoneType = DefaultZoneType
		}
		if _, dup := s.byID[z.ID]; dup {
			continue
		}
		s.zones = append(s.zones, z)
		s.byID[z.ID] = z
		s.states[z.ID] = &zoneState{}
	}

	return s
}

// Zones returns the configured zones in refresh order.
func (s *Service) Zones() []Zone {
	out := make([]Zone, len(s.zones))
	copy(out, s.zones)
	return out
}

// Zone returns one configured zone.
func (s *Service) Zone(id string) (Zone, bool) {
	z, ok := s.byID[id]
	return z, ok
}

// Get returns the entry for a zone. A fresh cached entry is returned
// unless forceRefresh is set. Otherwise the zone is refreshed; if that
// fails and an earlier entry exists, the earlier entry is returned with
// OutcomeStale and a nil error.
func (s *Service) Get(ctx context.Context, zoneID string, forceRefresh bool) (*Entry, Outcome, error) {
	zone, ok := s.byID[zoneID]
	if !ok {
		return nil, OutcomeNone, fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	st := s.states[zoneID]

	if !forceRefresh {
		if e := st.entry.Load(); s.isFresh(e) {
			s.metrics.RecordLookup(ctx, zoneID, telemetry.OutcomeHit)
			return e, OutcomeHit, nil
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	// Double-check: another goroutine might have refreshed while we waited
	prev := st.entry.Load()
	if !forceRefresh && s.isFresh(prev) {
		s.metrics.RecordLookup(ctx, zoneID, telemetry.OutcomeHit)
		return prev, OutcomeHit, nil
	}

	entry, err := s.refresh(ctx, zone, prev)
	if err != nil {
		s.logger.Error().Err(err).
			Str("zone_id", zoneID).
			Str("provider", zone.Provider).
			Msg("zone refresh failed")

		if prev != nil {
			s.logger.Warn().
				Str("zone_id", zoneID).
				Time("fetched_at", prev.FetchedAt).
				Msg("serving stale zone entry due to refresh error")
			s.metrics.RecordLookup(ctx, zoneID, telemetry.OutcomeStale)
			return prev, OutcomeStale, nil
		}

		s.metrics.RecordLookup(ctx, zoneID, telemetry.OutcomeError)
		return nil, OutcomeNone, err
	}

	st.entry.Store(entry)
	s.metrics.RecordLookup(ctx, zoneID, telemetry.OutcomeRefreshed)
	return entry, OutcomeRefreshed, nil
}

// Peek returns the cached entry without refreshing.
func (s *Service) Peek(zoneID string) (*Entry, bool) {
	st, ok := s.states[zoneID]
	if !ok {
		return nil, false
	}
	e := st.entry.Load()
	return e, e != nil
}

// CacheStatus reports the cache state of every zone.
func (s *Service) CacheStatus() []ZoneStatus {
	now := s.now()
	out := make([]ZoneStatus, 0, len(s.zones))
	for _, z := range s.zones {
		status := ZoneStatus{ZoneID: z.ID, Provider: z.Provider}
		if e := s.states[z.ID].entry.Load(); e != nil {
			status.HasData = true
			status.FetchedAt = e.FetchedAt
			status.ExpiresAt = e.FetchedAt.Add(s.cacheTTL)
			status.IsExpired = !now.Before(status.ExpiresAt)
			status.AQI = e.Result.AQI
		}
		out = append(out, status)
	}
	return out
}

// CacheTTL returns the configured TTL.
func (s *Service) CacheTTL() time.Duration {
	return s.cacheTTL
}

func (s *Service) isFresh(e *Entry) bool {
	return e != nil && s.now().Sub(e.FetchedAt) < s.cacheTTL
}

// refresh builds a new entry for zone. Current and history are fetched
// concurrently; only the current reading is required.
func (s *Service) refresh(ctx context.Context, zone Zone, prev *Entry) (*Entry, error) {
	src, ok := s.sources[zone.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, zone.Provider)
	}

	ctx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
	defer cancel()

	logger := s.logger.With().Str("zone_id", zone.ID).Str("provider", zone.Provider).Logger()
	logger.Debug().Msg("refreshing zone")
	start := time.Now()

	var (
		reading *Reading
		series  []aqi.Series
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := src.FetchCurrent(gctx, zone)
		if err != nil {
			return fmt.Errorf("fetch current: %w", err)
		}
		reading = r
		return nil
	})
	g.Go(func() error {
		h, err := src.FetchHistory(gctx, zone, s.historyWindow+time.Hour)
		if err != nil {
			logger.Warn().Err(err).Msg("history unavailable, continuing without it")
			return nil
		}
		series = h
		return nil
	})

	err := g.Wait()
	if err == nil && (reading == nil || len(reading.Values) == 0) {
		err = fmt.Errorf("fetch current: %w", ErrNoData)
	}
	s.metrics.RecordRefresh(ctx, zone.ID, zone.Provider, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := s.calc.Compute(reading.Values)

	history, dropped := s.merger.Merge(now, series...)
	for _, d := range dropped {
		logger.Debug().Err(d.Err).
			Time("bucket", time.Unix(d.Timestamp, 0).UTC()).
			Msg("dropping history bucket")
	}
	s.metrics.RecordDroppedBuckets(ctx, zone.ID, len(dropped))

	fetchedAt := now
	if prev != nil && !fetchedAt.After(prev.FetchedAt) {
		fetchedAt = prev.FetchedAt.Add(time.Millisecond)
	}

	observedAt := reading.ObservedAt
	if observedAt.IsZero() {
		observedAt = now
	}

	entry := &Entry{
		Zone:       zone,
		Result:     result,
		Raw:        aqi.Canonical(reading.Values),
		History:    history,
		Trend:      aqi.ComputeTrend(now, result.AQI, history),
		Source:     src.Name(),
		ObservedAt: observedAt,
		FetchedAt:  fetchedAt,
	}

	logger.Info().
		Int("aqi", result.AQI).
		Str("dominant", result.Dominant).
		Int("history_points", len(history)).
		Int("dropped_buckets", len(dropped)).
		Msg("zone refreshed")

	return entry, nil
}
