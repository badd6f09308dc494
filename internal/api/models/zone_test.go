package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/zoneaqi/internal/airquality"
	"github.com/breatheroute/zoneaqi/internal/api/models"
	"github.com/breatheroute/zoneaqi/internal/aqi"
)

func intPtr(v int) *int { return &v }

func TestNewZoneAQI(t *testing.T) {
	fetched := time.Date(2026, 10, 17, 12, 0, 5, 0, time.UTC)
	observed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	entry := &airquality.Entry{
		Zone: airquality.Zone{ID: "gulmarg", Name: "Gulmarg", Lat: 34.05, Lon: 74.38, Provider: "openmeteo"},
		Result: aqi.Result{
			AQI:            64,
			Dominant:       "pm10",
			SubIndices:     map[aqi.Pollutant]int{aqi.PM10: 64, aqi.PM25: 42},
			Concentrations: map[aqi.Pollutant]float64{aqi.PM10: 80, aqi.PM25: 10.004, aqi.CO: 0.4366812},
		},
		Raw:        map[aqi.Pollutant]float64{aqi.PM10: 80, aqi.PM25: 10.004, aqi.CO: 500},
		History:    []aqi.HistoryPoint{{Timestamp: 1792234800, AQI: 60}},
		Trend:      aqi.Trend{Change1h: intPtr(4)},
		Source:     "openmeteo",
		ObservedAt: observed,
		FetchedAt:  fetched,
	}

	payload := models.NewZoneAQI(entry)

	assert.Equal(t, "gulmarg", payload.ZoneID)
	assert.Equal(t, "hills", payload.ZoneApplied)
	assert.Equal(t, observed.Unix(), payload.Timestamp)
	assert.Equal(t, 64, payload.AQI)
	assert.Equal(t, "pm10", payload.MainPollutant)
	assert.Equal(t, map[string]int{"pm10": 64, "pm2_5": 42}, payload.AQIBreakdown)
	assert.Equal(t, 10.0, payload.Concentrations["pm2_5"])
	assert.Equal(t, 0.44, payload.Concentrations["co"])
	assert.Equal(t, 500.0, payload.ConcentrationsRaw["co"])

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2026-10-17T12:00:05Z", decoded["fetchedAt"])
	assert.Equal(t, map[string]interface{}{"lat": 34.05, "lon": 74.38}, decoded["coordinates"])
	assert.Equal(t, map[string]interface{}{"change1h": 4.0, "change24h": nil}, decoded["trends"])
	assert.Equal(t, []interface{}{map[string]interface{}{"ts": 1792234800.0, "aqi": 60.0}}, decoded["history"])
}

func TestNewZoneAQI_FallsBackToFetchTime(t *testing.T) {
	fetched := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	payload := models.NewZoneAQI(&airquality.Entry{
		Zone:      airquality.Zone{ID: "a", ZoneType: "urban"},
		FetchedAt: fetched,
	})

	assert.Equal(t, fetched.Unix(), payload.Timestamp)
	assert.Equal(t, "urban", payload.ZoneApplied)
	assert.NotNil(t, payload.History)
}
