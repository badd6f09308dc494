package aqi

import (
	"fmt"
	"math"
	"strings"
)

// Breakpoint is one segment of a piecewise-linear breakpoint table.
type Breakpoint struct {
	ConcLow   float64
	ConcHigh  float64
	IndexLow  int
	IndexHigh int
}

// Table is an ordered, non-overlapping list of breakpoints for one pollutant.
type Table []Breakpoint

// Saturation decides the sub-index reported above a table's last ceiling.
type Saturation int

const (
	// SaturateTopIndex reports the last breakpoint's IndexHigh.
	SaturateTopIndex Saturation = iota
	// SaturateCap500 always reports 500.
	SaturateCap500
)

// MaxIndex is the top of the AQI scale.
const MaxIndex = 500

// ParseSaturation parses "top" or "cap500".
func ParseSaturation(s string) (Saturation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "top":
		return SaturateTopIndex, nil
	case "cap500", "500":
		return SaturateCap500, nil
	default:
		return 0, fmt.Errorf("unknown saturation policy %q", s)
	}
}

func (s Saturation) String() string {
	if s == SaturateCap500 {
		return "cap500"
	}
	return "top"
}

// Engine maps concentrations onto sub-indices using one table per pollutant.
type Engine struct {
	tables     map[Pollutant]Table
	saturation Saturation
}

// NewEngine creates an engine over the given tables.
func NewEngine(tables map[Pollutant]Table, saturation Saturation) *Engine {
	return &Engine{tables: tables, saturation: saturation}
}

// SubIndex returns the sub-index for concentration c of pollutant p.
// The boolean is false when p has no table, c is not finite, or c falls in a
// gap between two breakpoints.
func (e *Engine) SubIndex(p Pollutant, c float64) (int, bool) {
	table, ok := e.tables[p]
	if !ok || len(table) == 0 {
		return 0, false
	}
	if !isFinite(c) {
		return 0, false
	}

	if c < table[0].ConcLow {
		return 0, true
	}

	// First match wins, so a boundary shared by two segments resolves to
	// the lower segment's IndexHigh.
	for _, bp := range table {
		if c < bp.ConcLow || c > bp.ConcHigh {
			continue
		}
		if bp.ConcHigh == bp.ConcLow {
			return bp.IndexLow, true
		}
		slope := float64(bp.IndexHigh-bp.IndexLow) / (bp.ConcHigh - bp.ConcLow)
		return bp.IndexLow + int(math.Round(slope*(c-bp.ConcLow))), true
	}

	last := table[len(table)-1]
	if c > last.ConcHigh {
		if e.saturation == SaturateCap500 {
			return MaxIndex, true
		}
		return last.IndexHigh, true
	}

	return 0, false
}

// Pollutants returns the pollutants the engine has tables for, in tie-break
// priority order.
func (e *Engine) Pollutants() []Pollutant {
	out := make([]Pollutant, 0, len(e.tables))
	for _, p := range Priority {
		if _, ok := e.tables[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
