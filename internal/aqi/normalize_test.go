package aqi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/zoneaqi/internal/aqi"
)

func TestParsePollutant_Synonyms(t *testing.T) {
	cases := map[string]aqi.Pollutant{
		"pm2.5":            aqi.PM25,
		"PM25":             aqi.PM25,
		" pm2_5 ":          aqi.PM25,
		"ozone":            aqi.O3,
		"nitrogen_dioxide": aqi.NO2,
		"sulphur_dioxide":  aqi.SO2,
		"carbon_monoxide":  aqi.CO,
		"temperature":      aqi.Temperature,
	}
	for key, want := range cases {
		got, ok := aqi.ParsePollutant(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}

	_, ok := aqi.ParsePollutant("benzene")
	assert.False(t, ok)
}

func TestNormalizer_USEPA(t *testing.T) {
	n := aqi.NewNormalizer(aqi.RegimeUSEPA)

	out := n.Normalize(map[string]float64{
		"carbon_monoxide":  1145,
		"nitrogen_dioxide": 188,
		"so2":              262,
		"ozone":            196,
		"pm10":             40,
		"dust":             12,
	})

	assert.InDelta(t, 1.0, out[aqi.CO], 1e-9)
	assert.InDelta(t, 100.0, out[aqi.NO2], 1e-9)
	assert.InDelta(t, 100.0, out[aqi.SO2], 1e-9)
	assert.InDelta(t, 100.0, out[aqi.O3], 1e-9)
	assert.Equal(t, 40.0, out[aqi.PM10])
	assert.Len(t, out, 5, "unknown keys are dropped")
}

func TestNormalizer_MilligramCO(t *testing.T) {
	n := aqi.NewNormalizer(aqi.RegimeMilligramCO)

	out := n.Normalize(map[string]float64{"co": 2000, "no2": 50, "humidity": 70})

	assert.InDelta(t, 2.0, out[aqi.CO], 1e-9)
	assert.Equal(t, 50.0, out[aqi.NO2])
	assert.Equal(t, 70.0, out[aqi.Humidity])
}

func TestToMicrograms(t *testing.T) {
	v, ok := aqi.ToMicrograms(aqi.O3, 50, "ppb")
	require.True(t, ok)
	assert.InDelta(t, 98.0, v, 1e-9)

	v, ok = aqi.ToMicrograms(aqi.CO, 1, "ppm")
	require.True(t, ok)
	assert.InDelta(t, 1145.0, v, 1e-9)

	v, ok = aqi.ToMicrograms(aqi.PM25, 12, "µg/m³")
	require.True(t, ok)
	assert.Equal(t, 12.0, v)

	_, ok = aqi.ToMicrograms(aqi.PM25, 12, "ppm")
	assert.False(t, ok)

	_, ok = aqi.ToMicrograms(aqi.NO2, 12, "particles/cm³")
	assert.False(t, ok)
}

func TestCanonical_SynonymCollisionIsDeterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		got := aqi.Canonical(map[string]float64{"pm2.5": 10, "pm25": 100, "PM10.0": 30, "pm10": 40})
		assert.Equal(t, 10.0, got[aqi.PM25], "lexicographically smallest key wins")
		assert.Equal(t, 40.0, got[aqi.PM10], "exact canonical key wins")
	}
}

func TestNormalize_SynonymCollisionIsDeterministic(t *testing.T) {
	n := aqi.NewNormalizer(aqi.RegimeUSEPA)
	for i := 0; i < 50; i++ {
		got := n.Normalize(map[string]float64{"ozone": 196, "o3": 392})
		assert.InDelta(t, 200.0, got[aqi.O3], 1e-9)
	}
}
