package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/breatheroute/zoneaqi/internal/telemetry"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Scheduler periodically force-refreshes every zone.
type Scheduler struct {
	cron      *gocron.Scheduler
	refresher Refresher
	config    SchedulerConfig
	logger    zerolog.Logger
	metrics   *telemetry.ZoneMetrics
	now       func() time.Time

	// passLock holds one token while a refresh pass runs.
	passLock chan struct{}

	mu      sync.Mutex
	stats   SchedulerMetrics
	cancel  context.CancelFunc
	running bool
}

// SchedulerDeps holds dependencies for creating a Scheduler.
type SchedulerDeps struct {
	Config    SchedulerConfig
	Refresher Refresher
	Logger    zerolog.Logger

	// Metrics is optional.
	Metrics *telemetry.ZoneMetrics

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// NewScheduler creates a scheduler. Call Start to begin cycling.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		cron:      gocron.NewScheduler(time.UTC),
		refresher: deps.Refresher,
		config:    deps.Config.withDefaults(),
		logger:    deps.Logger.With().Str("component", "scheduler").Logger(),
		metrics:   deps.Metrics,
		now:       now,
		passLock:  make(chan struct{}, 1),
	}
}

// Start runs a cycle immediately and then every Interval. Cycles never
// overlap; a tick that arrives while a cycle runs is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)

	_, err := s.cron.Every(s.config.Interval).
		SingletonMode().
		StartImmediately().
		Do(func() {
			s.RunCycle(runCtx)
		})
	if err != nil {
		cancel()
		return err
	}

	s.cancel = cancel
	s.running = true
	s.cron.StartAsync()

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Dur("zone_delay", s.config.ZoneDelay).
		Msg("refresh scheduler started")
	return nil
}

// Stop cancels the running cycle's remaining zones and waits for the
// scheduler to stop. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.cron.Stop()
	s.logger.Info().Msg("refresh scheduler stopped")
}

// Running reports whether Start has been called without Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
