package handler

import (
	"net/http"
	"time"

	"github.com/breatheroute/zoneaqi/internal/airquality"
	"github.com/breatheroute/zoneaqi/internal/api/models"
	"github.com/breatheroute/zoneaqi/internal/api/response"
	"github.com/breatheroute/zoneaqi/internal/provider/resilience"
	"github.com/breatheroute/zoneaqi/internal/worker"
)

// CacheReporter exposes the zone cache state.
type CacheReporter interface {
	CacheStatus() []airquality.ZoneStatus
}

// HealthReporter exposes upstream provider health.
type HealthReporter interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// SchedulerReporter exposes background refresh state.
type SchedulerReporter interface {
	Running() bool
	Metrics() worker.SchedulerMetrics
}

// OpsConfig configures an OpsHandler. Nil reporters are omitted from
// the status payload.
type OpsConfig struct {
	Version   string
	BuildTime string
	Cache     CacheReporter
	Providers HealthReporter
	Scheduler SchedulerReporter
	Now       func() time.Time
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	cache     CacheReporter
	providers HealthReporter
	scheduler SchedulerReporter
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		cache:     cfg.Cache,
		providers: cfg.Providers,
		scheduler: cfg.Scheduler,
		now:       now,
	}
}

// HealthCheck handles GET /ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /ops/ready. The service is ready once at
// least one zone has cached data, or when no cache is wired.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		cached := 0
		zones := h.cache.CacheStatus()
		for _, z := range zones {
			if z.HasData {
				cached++
			}
		}
		if len(zones) > 0 && cached == 0 {
			response.ServiceUnavailable(w, r, "no zone has cached air quality data yet")
			return
		}
	}

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /ops/status - provider, cache and scheduler status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.now()),
		Providers: []models.ProviderStatus{},
		Zones:     []models.ZoneStatus{},
	}

	if h.providers != nil {
		for _, ph := range h.providers.GetAllHealth() {
			ps := providerStatus(ph)
			status.Providers = append(status.Providers, ps)
			status.Status = worst(status.Status, ps.Status)
		}
	}

	if h.cache != nil {
		for _, z := range h.cache.CacheStatus() {
			zs := models.ZoneStatus{
				ZoneID:    z.ZoneID,
				Provider:  z.Provider,
				HasData:   z.HasData,
				IsExpired: z.IsExpired,
				FetchedAt: models.TimestampPtr(z.FetchedAt),
				ExpiresAt: models.TimestampPtr(z.ExpiresAt),
			}
			if z.HasData {
				aqiValue := z.AQI
				zs.AQI = &aqiValue
			}
			status.Zones = append(status.Zones, zs)
		}
	}

	if h.scheduler != nil {
		m := h.scheduler.Metrics()
		ss := &models.SchedulerStatus{
			Running:        h.scheduler.Running(),
			Cycles:         m.Cycles,
			ZonesRefreshed: m.ZonesRefreshed,
			ZonesStale:     m.ZonesStale,
			ZonesFailed:    m.ZonesFailed,
			LastCycleAt:    models.TimestampPtr(m.LastCycleAt),
		}
		if m.Cycles > 0 {
			ss.LastCycleDuration = m.LastCycleDuration.String()
		}
		status.Scheduler = ss
	}

	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:     ph.Name,
		Status:       models.HealthStatusOK,
		CircuitState: ph.CircuitState.String(),
		Successes:    ph.Successes,
		Failures:     ph.Failures,
	}
	switch {
	case ph.IsUnhealthy():
		ps.Status = models.HealthStatusFail
	case ph.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}
	if ph.LastSuccessAt != nil {
		ps.LastSuccessAt = models.TimestampPtr(*ph.LastSuccessAt)
	}
	if ph.LastFailureAt != nil {
		ps.LastFailureAt = models.TimestampPtr(*ph.LastFailureAt)
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}

// worst returns the more severe of two statuses.
func worst(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
