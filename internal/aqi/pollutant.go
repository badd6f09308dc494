// Package aqi converts pollutant concentrations into an air quality index.
//
// Everything in this package is pure: breakpoint lookup, unit normalization,
// aggregation into an overall index, hourly history merging and trend deltas.
package aqi

import "strings"

// Pollutant is a canonical pollutant key.
type Pollutant string

const (
	PM25 Pollutant = "pm2_5"
	PM10 Pollutant = "pm10"
	CO   Pollutant = "co"
	NO2  Pollutant = "no2"
	SO2  Pollutant = "so2"
	O3   Pollutant = "o3"

	// Ancillary keys are forwarded by the normalizer but never contribute
	// a sub-index.
	Temperature Pollutant = "temp"
	Humidity    Pollutant = "humidity"
)

// NotAvailable is reported as the dominant pollutant when no sub-index
// could be computed.
const NotAvailable = "n/a"

// Priority is the order used to break ties between equal sub-indices.
var Priority = []Pollutant{PM25, PM10, O3, NO2, SO2, CO}

var synonyms = map[string]Pollutant{
	"pm2.5":             PM25,
	"pm2_5":             PM25,
	"pm25":              PM25,
	"pm10":              PM10,
	"pm10.0":            PM10,
	"co":                CO,
	"carbon_monoxide":   CO,
	"no2":               NO2,
	"nitrogen_dioxide":  NO2,
	"so2":               SO2,
	"sulphur_dioxide":   SO2,
	"sulfur_dioxide":    SO2,
	"o3":                O3,
	"ozone":             O3,
	"temp":              Temperature,
	"temperature":       Temperature,
	"humidity":          Humidity,
	"relativehumidity":  Humidity,
	"relative_humidity": Humidity,
}

// ParsePollutant maps a provider key onto its canonical pollutant.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParsePollutant(key string) (Pollutant, bool) {
	p, ok := synonyms[strings.ToLower(strings.TrimSpace(key))]
	return p, ok
}

// IsAncillary reports whether p is carried alongside pollutants without
// taking part in the index.
func (p Pollutant) IsAncillary() bool {
	return p == Temperature || p == Humidity
}

// molarFactors are µg/m³ per ppb at 25 °C and 1 atm.
var molarFactors = map[Pollutant]float64{
	CO:  1.145,
	NO2: 1.88,
	SO2: 2.62,
	O3:  1.96,
}

// ToMicrograms converts a concentration reported in unit into µg/m³.
// Recognised units are µg/m³, mg/m³, ppm and ppb. Gas units are only
// convertible for pollutants with a known molar factor.
func ToMicrograms(p Pollutant, value float64, unit string) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "µg/m³", "μg/m³", "ug/m3", "µg/m3", "ugm3", "":
		return value, true
	case "mg/m³", "mg/m3":
		return value * 1000, true
	case "ppb":
		f, ok := molarFactors[p]
		if !ok {
			return 0, false
		}
		return value * f, true
	case "ppm":
		f, ok := molarFactors[p]
		if !ok {
			return 0, false
		}
		return value * 1000 * f, true
	default:
		return 0, false
	}
}
