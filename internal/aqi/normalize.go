package aqi

import "fmt"

// Regime selects the units a profile's tables are expressed in.
type Regime int

const (
	// RegimeMilligramCO keeps µg/m³ for everything except CO, which is
	// reported in mg/m³.
	RegimeMilligramCO Regime = iota
	// RegimeUSEPA converts gases to ppm (CO) or ppb (NO2, SO2, O3).
	RegimeUSEPA
)

func (r Regime) String() string {
	switch r {
	case RegimeMilligramCO:
		return "mg_co"
	case RegimeUSEPA:
		return "us_epa"
	default:
		return fmt.Sprintf("regime(%d)", int(r))
	}
}

// usEPADivisors turn µg/m³ into the units of the US EPA tables.
var usEPADivisors = map[Pollutant]float64{
	CO:  1145,
	NO2: 1.88,
	SO2: 2.62,
	O3:  1.96,
}

// Normalizer maps provider keys onto canonical pollutants and converts
// µg/m³ into the units of the active regime.
type Normalizer struct {
	regime Regime
}

// NewNormalizer creates a normalizer for one regime.
func NewNormalizer(regime Regime) Normalizer {
	return Normalizer{regime: regime}
}

// Regime returns the configured regime.
func (n Normalizer) Regime() Regime {
	return n.regime
}

// Convert converts a µg/m³ concentration of p into regime units.
// Ancillary values pass through unchanged.
func (n Normalizer) Convert(p Pollutant, ugm3 float64) float64 {
	switch n.regime {
	case RegimeUSEPA:
		if d, ok := usEPADivisors[p]; ok {
			return ugm3 / d
		}
	case RegimeMilligramCO:
		if p == CO {
			return ugm3 / 1000
		}
	}
	return ugm3
}

// Normalize canonicalizes and converts a raw µg/m³ reading map.
// Unrecognised keys are dropped. Synonym collisions resolve as in Canonical.
func (n Normalizer) Normalize(raw map[string]float64) map[Pollutant]float64 {
	out := Canonical(raw)
	for p, value := range out {
		out[p] = n.Convert(p, value)
	}
	return out
}

// Canonical canonicalizes keys without unit conversion. When raw carries
// several synonyms of one pollutant, the exact canonical key wins,
// otherwise the lexicographically smallest raw key.
func Canonical(raw map[string]float64) map[Pollutant]float64 {
	out := make(map[Pollutant]float64, len(raw))
	chosen := make(map[Pollutant]string, len(raw))
	for key, value := range raw {
		p, ok := ParsePollutant(key)
		if !ok {
			continue
		}
		if prev, seen := chosen[p]; seen && !preferKey(p, key, prev) {
			continue
		}
		chosen[p] = key
		out[p] = value
	}
	return out
}

func preferKey(p Pollutant, key, prev string) bool {
	if prev == string(p) {
		return false
	}
	if key == string(p) {
		return true
	}
	return key < prev
}
