package aqi

import (
	"sort"
	"time"
)

// Sample is one raw reading at a point in time. Value is in µg/m³ and
// Pollutant may be any key ParsePollutant understands.
type Sample struct {
	Time      time.Time
	Pollutant string
	Value     float64
}

// Series is an ordered list of samples from one source.
type Series struct {
	Source  string
	Samples []Sample
}

// HistoryPoint is the index of one hour bucket.
type HistoryPoint struct {
	Timestamp int64 `json:"ts"`
	AQI       int   `json:"aqi"`
}

// BucketOutcome is the aggregation result of one hour bucket.
type BucketOutcome struct {
	Timestamp int64
	Result    Result
	Err       error
}

// MergerConfig holds configuration for the history merger.
type MergerConfig struct {
	// Window is how far back buckets are kept (default: 24h).
	Window time.Duration

	// FutureGrace tolerates provider timestamps slightly ahead of now
	// (default: 1h).
	FutureGrace time.Duration
}

// Merger aligns samples from several series into hourly buckets and
// computes one index per bucket.
type Merger struct {
	calc        *Calculator
	window      time.Duration
	futureGrace time.Duration
}

// NewMerger creates a merger.
func NewMerger(calc *Calculator, cfg MergerConfig) *Merger {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.FutureGrace <= 0 {
		cfg.FutureGrace = time.Hour
	}
	return &Merger{calc: calc, window: cfg.Window, futureGrace: cfg.FutureGrace}
}

// RoundToHour returns the Unix timestamp of the hour nearest to t.
// Half past rounds up.
func RoundToHour(t time.Time) int64 {
	base := t.Truncate(time.Hour)
	if t.Sub(base) >= 30*time.Minute {
		base = base.Add(time.Hour)
	}
	return base.Unix()
}

// Buckets groups samples by rounded hour. Series are applied in order and
// so are samples within a series: a later write for the same bucket and
// pollutant replaces the earlier one. Buckets outside
// [floor_hour(now-window), now+grace] are discarded.
func (m *Merger) Buckets(now time.Time, series ...Series) map[int64]map[string]float64 {
	oldest := now.Add(-m.window).Truncate(time.Hour).Unix()
	newest := now.Add(m.futureGrace).Unix()

	buckets := make(map[int64]map[string]float64)
	for _, s := range series {
		for _, sample := range s.Samples {
			ts := RoundToHour(sample.Time)
			if ts < oldest || ts > newest {
				continue
			}
			p, ok := ParsePollutant(sample.Pollutant)
			if !ok {
				continue
			}
			b, ok := buckets[ts]
			if !ok {
				b = make(map[string]float64)
				buckets[ts] = b
			}
			b[string(p)] = sample.Value
		}
	}
	return buckets
}

// Evaluate aggregates every bucket and returns all outcomes, including
// failed ones, ordered by timestamp.
func (m *Merger) Evaluate(now time.Time, series ...Series) []BucketOutcome {
	buckets := m.Buckets(now, series...)
	outcomes := make([]BucketOutcome, 0, len(buckets))
	for ts, raw := range buckets {
		res, err := m.calc.Evaluate(m.calc.normalizer.Normalize(raw))
		outcomes = append(outcomes, BucketOutcome{Timestamp: ts, Result: res, Err: err})
	}
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Timestamp < outcomes[j].Timestamp
	})
	return outcomes
}

// Merge returns the history points of all buckets that aggregated cleanly,
// in ascending order, along with the outcomes that were dropped.
func (m *Merger) Merge(now time.Time, series ...Series) ([]HistoryPoint, []BucketOutcome) {
	outcomes := m.Evaluate(now, series...)
	points := make([]HistoryPoint, 0, len(outcomes))
	var dropped []BucketOutcome
	for _, o := range outcomes {
		if o.Err != nil {
			dropped = append(dropped, o)
			continue
		}
		points = append(points, HistoryPoint{Timestamp: o.Timestamp, AQI: o.Result.AQI})
	}
	return points, dropped
}
