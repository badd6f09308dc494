// Package airquality serves per-zone air quality payloads, refreshing them
// from upstream sources behind a staleness-tolerant cache.
package airquality

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/breatheroute/zoneaqi/internal/aqi"
)

// Source and cache errors.
var (
	ErrZoneNotFound       = errors.New("zone not found")
	ErrMissingCredential  = errors.New("provider credential not configured")
	ErrCredentialRejected = errors.New("provider rejected credential")
	ErrUnknownProvider    = errors.New("no source configured for provider")
	ErrUpstream           = errors.New("upstream provider error")
	ErrNoData             = errors.New("provider returned no data")
)

// ErrorKind groups errors by how they surface to callers.
type ErrorKind string

const (
	KindConfig   ErrorKind = "config"
	KindUpstream ErrorKind = "upstream"
	KindNoData   ErrorKind = "no_data"
	KindNotFound ErrorKind = "not_found"
)

// Classify maps an error onto its kind. Timeouts and anything
// unrecognised are upstream failures.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrZoneNotFound):
		return KindNotFound
	case errors.Is(err, ErrMissingCredential), errors.Is(err, ErrCredentialRejected),
		errors.Is(err, ErrUnknownProvider):
		return KindConfig
	case errors.Is(err, ErrNoData):
		return KindNoData
	default:
		return KindUpstream
	}
}

// StatusError classifies an unexpected upstream HTTP status.
func StatusError(endpoint string, status int) error {
	var kind error
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = ErrCredentialRejected
	case http.StatusNotFound:
		kind = ErrNoData
	default:
		kind = ErrUpstream
	}
	return fmt.Errorf("%w: unexpected status %d from %s", kind, status, endpoint)
}

// DefaultZoneType is applied when a zone does not declare one.
const DefaultZoneType = "hills"

// Zone is a configured location served by one upstream provider.
type Zone struct {
	ID       string  `yaml:"id" json:"id" validate:"required,max=64,zoneid"`
	Name     string  `yaml:"name" json:"name" validate:"required"`
	Lat      float64 `yaml:"lat" json:"lat" validate:"gte=-90,lte=90"`
	Lon      float64 `yaml:"lon" json:"lon" validate:"gte=-180,lte=180"`
	ZoneType string  `yaml:"zone_type" json:"zoneType"`
	Provider string  `yaml:"provider" json:"provider" validate:"required,oneof=openmeteo openaq purpleair"`

	// StationID is the provider's location or sensor identifier.
	StationID string `yaml:"station_id" json:"stationId,omitempty" validate:"required_unless=Provider openmeteo"`
}

// Reading is the current raw observation for a zone.
type Reading struct {
	// Values are µg/m³ concentrations keyed by provider pollutant names.
	Values map[string]float64

	// ObservedAt is when the provider measured the values.
	ObservedAt time.Time
}

// Entry is the cached payload for one zone. Entries are immutable once
// stored; a refresh replaces the whole entry.
type Entry struct {
	Zone    Zone
	Result  aqi.Result
	Raw     map[aqi.Pollutant]float64
	History []aqi.HistoryPoint
	Trend   aqi.Trend

	// Source labels the provider that produced the entry.
	Source string

	// ObservedAt is the provider's reading time.
	ObservedAt time.Time

	// FetchedAt is when the entry was built. It increases across
	// successive refreshes of one zone.
	FetchedAt time.Time
}

// Outcome tells how Get produced its entry.
type Outcome int

const (
	// OutcomeNone means no entry was returned.
	OutcomeNone Outcome = iota
	// OutcomeHit served a fresh cached entry without an upstream call.
	OutcomeHit
	// OutcomeRefreshed built and stored a new entry.
	OutcomeRefreshed
	// OutcomeStale served the previous entry after a failed refresh.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeHit:
		return "hit"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeStale:
		return "stale"
	default:
		return "unknown"
	}
}

// ZoneStatus describes the cache state of one zone.
type ZoneStatus struct {
	ZoneID    string
	Provider  string
	HasData   bool
	FetchedAt time.Time
	ExpiresAt time.Time
	IsExpired bool
	AQI       int
}
