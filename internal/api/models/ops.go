package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status    HealthStatus     `json:"status"`
	Time      Timestamp        `json:"time"`
	Providers []ProviderStatus `json:"providers"`
	Zones     []ZoneStatus     `json:"zones"`
	Scheduler *SchedulerStatus `json:"scheduler,omitempty"`
}

// ProviderStatus represents the status of an external provider.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	Successes     uint64       `json:"successes"`
	Failures      uint64       `json:"failures"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// ZoneStatus represents the cache state of one zone.
type ZoneStatus struct {
	ZoneID    string     `json:"zoneId"`
	Provider  string     `json:"provider"`
	HasData   bool       `json:"hasData"`
	IsExpired bool       `json:"isExpired"`
	AQI       *int       `json:"aqi,omitempty"`
	FetchedAt *Timestamp `json:"fetchedAt,omitempty"`
	ExpiresAt *Timestamp `json:"expiresAt,omitempty"`
}

// SchedulerStatus summarises background refresh activity.
type SchedulerStatus struct {
	Running           bool       `json:"running"`
	Cycles            int64      `json:"cycles"`
	ZonesRefreshed    int64      `json:"zonesRefreshed"`
	ZonesStale        int64      `json:"zonesStale"`
	ZonesFailed       int64      `json:"zonesFailed"`
	LastCycleAt       *Timestamp `json:"lastCycleAt,omitempty"`
	LastCycleDuration string     `json:"lastCycleDuration,omitempty"`
}
