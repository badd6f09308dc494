package aqi

import "errors"

// Aggregation errors.
var (
	ErrNoSubIndex           = errors.New("no pollutant produced a sub-index")
	ErrInvalidConcentration = errors.New("concentration is not a finite number")
)

// Result is the overall index for one set of readings.
type Result struct {
	// AQI is the maximum sub-index, or 0 when none was computed.
	AQI int

	// Dominant is the pollutant that produced AQI, or NotAvailable.
	Dominant string

	// SubIndices holds every computed sub-index.
	SubIndices map[Pollutant]int

	// Concentrations are the normalized values that were evaluated,
	// including ancillary readings.
	Concentrations map[Pollutant]float64
}

// Computed reports whether at least one sub-index was produced.
func (r Result) Computed() bool {
	return len(r.SubIndices) > 0
}

// Calculator normalizes raw readings and aggregates them into a Result.
type Calculator struct {
	engine     *Engine
	normalizer Normalizer
	profile    string
}

// NewCalculator builds a calculator from a profile and saturation policy.
func NewCalculator(profile Profile, saturation Saturation) *Calculator {
	return &Calculator{
		engine:     NewEngine(profile.Tables, saturation),
		normalizer: NewNormalizer(profile.Regime),
		profile:    profile.Name,
	}
}

// Profile returns the name of the active profile.
func (c *Calculator) Profile() string {
	return c.profile
}

// Normalizer returns the calculator's normalizer.
func (c *Calculator) Normalizer() Normalizer {
	return c.normalizer
}

// Compute normalizes raw µg/m³ readings and aggregates them.
func (c *Calculator) Compute(raw map[string]float64) Result {
	return c.Aggregate(c.normalizer.Normalize(raw))
}

// Aggregate evaluates already-normalized concentrations. Pollutants without
// a sub-index are left out; equal sub-indices resolve by Priority.
func (c *Calculator) Aggregate(conc map[Pollutant]float64) Result {
	res := Result{
		Dominant:       NotAvailable,
		SubIndices:     make(map[Pollutant]int),
		Concentrations: conc,
	}

	best := -1
	for _, p := range Priority {
		value, ok := conc[p]
		if !ok {
			continue
		}
		idx, ok := c.engine.SubIndex(p, value)
		if !ok {
			continue
		}
		res.SubIndices[p] = idx
		if idx > best {
			best = idx
			res.AQI = idx
			res.Dominant = string(p)
		}
	}

	return res
}

// Evaluate is Aggregate with failures made explicit: a bucket with a
// non-finite value or with nothing computable returns an error.
func (c *Calculator) Evaluate(conc map[Pollutant]float64) (Result, error) {
	for p, v := range conc {
		if p.IsAncillary() {
			continue
		}
		if !isFinite(v) {
			return Result{}, ErrInvalidConcentration
		}
	}
	res := c.Aggregate(conc)
	if !res.Computed() {
		return res, ErrNoSubIndex
	}
	return res, nil
}
