package models

import (
	"math"

	"github.com/breatheroute/zoneaqi/internal/airquality"
)

// ZoneList is the response of GET /zones.
type ZoneList struct {
	Zones []ZoneSummary `json:"zones"`
}

// ZoneSummary describes a configured zone.
type ZoneSummary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	ZoneType    string      `json:"zoneType"`
	Provider    string      `json:"provider"`
	Coordinates Coordinates `json:"coordinates"`
}

// HistoryPoint is one hourly AQI value.
type HistoryPoint struct {
	Timestamp int64 `json:"ts"`
	AQI       int   `json:"aqi"`
}

// Trends holds AQI deltas; a nil delta had no comparable history point.
type Trends struct {
	Change1h  *int `json:"change1h"`
	Change24h *int `json:"change24h"`
}

// ZoneAQI is the response of GET /aqi/{zoneId}.
type ZoneAQI struct {
	ZoneID            string             `json:"zoneId"`
	ZoneName          string             `json:"zoneName"`
	ZoneApplied       string             `json:"zoneApplied"`
	Source            string             `json:"source"`
	Timestamp         int64              `json:"timestamp"`
	FetchedAt         Timestamp          `json:"fetchedAt"`
	Coordinates       Coordinates        `json:"coordinates"`
	AQI               int                `json:"aqi"`
	MainPollutant     string             `json:"mainPollutant"`
	AQIBreakdown      map[string]int     `json:"aqiBreakdown"`
	Concentrations    map[string]float64 `json:"concentrations"`
	ConcentrationsRaw map[string]float64 `json:"concentrationsRaw"`
	History           []HistoryPoint     `json:"history"`
	Trends            Trends             `json:"trends"`
}

// NewZoneSummary converts a configured zone.
func NewZoneSummary(z airquality.Zone) ZoneSummary {
	zoneType := z.ZoneType
	if zoneType == "" {
		zoneType = airquality.DefaultZoneType
	}
	return ZoneSummary{
		ID:          z.ID,
		Name:        z.Name,
		ZoneType:    zoneType,
		Provider:    z.Provider,
		Coordinates: Coordinates{Lat: z.Lat, Lon: z.Lon},
	}
}

// NewZoneAQI converts a cache entry into the response payload.
func NewZoneAQI(e *airquality.Entry) ZoneAQI {
	summary := NewZoneSummary(e.Zone)

	observed := e.ObservedAt
	if observed.IsZero() {
		observed = e.FetchedAt
	}

	breakdown := make(map[string]int, len(e.Result.SubIndices))
	for p, v := range e.Result.SubIndices {
		breakdown[string(p)] = v
	}

	concentrations := make(map[string]float64, len(e.Result.Concentrations))
	for p, v := range e.Result.Concentrations {
		concentrations[string(p)] = round2(v)
	}

	raw := make(map[string]float64, len(e.Raw))
	for p, v := range e.Raw {
		raw[string(p)] = v
	}

	history := make([]HistoryPoint, len(e.History))
	for i, h := range e.History {
		history[i] = HistoryPoint{Timestamp: h.Timestamp, AQI: h.AQI}
	}

	return ZoneAQI{
		ZoneID:            summary.ID,
		ZoneName:          summary.Name,
		ZoneApplied:       summary.ZoneType,
		Source:            e.Source,
		Timestamp:         observed.Unix(),
		FetchedAt:         Timestamp(e.FetchedAt),
		Coordinates:       summary.Coordinates,
		AQI:               e.Result.AQI,
		MainPollutant:     e.Result.Dominant,
		AQIBreakdown:      breakdown,
		Concentrations:    concentrations,
		ConcentrationsRaw: raw,
		History:           history,
		Trends: Trends{
			Change1h:  e.Trend.Change1h,
			Change24h: e.Trend.Change24h,
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
