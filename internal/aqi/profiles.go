package aqi

import (
	"fmt"
	"strings"
)

// Profile bundles a set of breakpoint tables with the unit regime they
// expect.
type Profile struct {
	Name   string
	Regime Regime
	Tables map[Pollutant]Table
}

// Profile names.
const (
	ProfileUSEPA     = "us_epa"
	ProfileIndiaNAQI = "in_naqi"
)

// USEPA returns the US EPA tables. PM in µg/m³, CO in ppm, gases in ppb.
// Segments are contiguous: each ConcLow equals the previous ConcHigh.
func USEPA() Profile {
	return Profile{
		Name:   ProfileUSEPA,
		Regime: RegimeUSEPA,
		Tables: map[Pollutant]Table{
			PM25: {
				{0, 12.0, 0, 50},
				{12.0, 35.4, 51, 100},
				{35.4, 55.4, 101, 150},
				{55.4, 150.4, 151, 200},
				{150.4, 250.4, 201, 300},
				{250.4, 350.4, 301, 400},
				{350.4, 500.4, 401, 500},
			},
			PM10: {
				{0, 54, 0, 50},
				{54, 154, 51, 100},
				{154, 254, 101, 150},
				{254, 354, 151, 200},
				{354, 424, 201, 300},
				{424, 504, 301, 400},
				{504, 604, 401, 500},
			},
			CO: {
				{0, 4.4, 0, 50},
				{4.4, 9.4, 51, 100},
				{9.4, 12.4, 101, 150},
				{12.4, 15.4, 151, 200},
				{15.4, 30.4, 201, 300},
				{30.4, 40.4, 301, 400},
				{40.4, 50.4, 401, 500},
			},
			NO2: {
				{0, 53, 0, 50},
				{53, 100, 51, 100},
				{100, 360, 101, 150},
				{360, 649, 151, 200},
				{649, 1249, 201, 300},
				{1249, 1649, 301, 400},
				{1649, 2049, 401, 500},
			},
			SO2: {
				{0, 35, 0, 50},
				{35, 75, 51, 100},
				{75, 185, 101, 150},
				{185, 304, 151, 200},
				{304, 604, 201, 300},
				{604, 804, 301, 400},
				{804, 1004, 401, 500},
			},
			// 8-hour segments up to 200 ppb, 1-hour segments above.
			O3: {
				{0, 54, 0, 50},
				{54, 70, 51, 100},
				{70, 85, 101, 150},
				{85, 105, 151, 200},
				{105, 200, 201, 300},
				{200, 504, 301, 400},
				{504, 604, 401, 500},
			},
		},
	}
}

// IndiaNAQI returns the Indian national AQI tables. µg/m³, CO in mg/m³.
func IndiaNAQI() Profile {
	return Profile{
		Name:   ProfileIndiaNAQI,
		Regime: RegimeMilligramCO,
		Tables: map[Pollutant]Table{
			PM25: {
				{0, 30, 0, 50},
				{30, 60, 51, 100},
				{60, 90, 101, 200},
				{90, 120, 201, 300},
				{120, 250, 301, 400},
				{250, 380, 401, 500},
			},
			PM10: {
				{0, 50, 0, 50},
				{50, 100, 51, 100},
				{100, 250, 101, 200},
				{250, 350, 201, 300},
				{350, 430, 301, 400},
				{430, 510, 401, 500},
			},
			CO: {
				{0, 1.0, 0, 50},
				{1.0, 2.0, 51, 100},
				{2.0, 10, 101, 200},
				{10, 17, 201, 300},
				{17, 34, 301, 400},
				{34, 50, 401, 500},
			},
			NO2: {
				{0, 40, 0, 50},
				{40, 80, 51, 100},
				{80, 180, 101, 200},
				{180, 280, 201, 300},
				{280, 400, 301, 400},
				{400, 500, 401, 500},
			},
			SO2: {
				{0, 40, 0, 50},
				{40, 80, 51, 100},
				{80, 380, 101, 200},
				{380, 800, 201, 300},
				{800, 1600, 301, 400},
				{1600, 2000, 401, 500},
			},
			O3: {
				{0, 50, 0, 50},
				{50, 100, 51, 100},
				{100, 168, 101, 200},
				{168, 208, 201, 300},
				{208, 748, 301, 400},
				{748, 1000, 401, 500},
			},
		},
	}
}

// LookupProfile returns the built-in profile with the given name.
func LookupProfile(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProfileUSEPA:
		return USEPA(), nil
	case ProfileIndiaNAQI:
		return IndiaNAQI(), nil
	default:
		return Profile{}, fmt.Errorf("unknown aqi profile %q", name)
	}
}
