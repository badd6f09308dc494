// Package worker runs background zone refreshes: a periodic scheduler and
// an optional Pub/Sub subscription for on-demand refreshes.
package worker

import (
	"time"
)

// SchedulerConfig holds configuration for the refresh scheduler.
type SchedulerConfig struct {
	// Interval between refresh cycles.
	// Default: 15 minutes
	Interval time.Duration

	// ZoneDelay is the pause between two zones of one cycle, keeping
	// upstream request rates low. Zero disables the pause.
	// Default (DefaultSchedulerConfig): 1 second
	ZoneDelay time.Duration

	// ZoneTimeout bounds a single zone refresh. The refresh is not
	// interrupted by scheduler shutdown, only by this timeout.
	// Default: 60 seconds
	ZoneTimeout time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:    15 * time.Minute,
		ZoneDelay:   time.Second,
		ZoneTimeout: 60 * time.Second,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	def := DefaultSchedulerConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.ZoneDelay < 0 {
		c.ZoneDelay = 0
	}
	if c.ZoneTimeout <= 0 {
		c.ZoneTimeout = def.ZoneTimeout
	}
	return c
}
