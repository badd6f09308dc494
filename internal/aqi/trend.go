package aqi

import "time"

// TrendTolerance is how far a history point may sit from the target time.
const TrendTolerance = 30 * time.Minute

// Trend holds index deltas against one hour and one day ago.
// A nil delta means no history point was close enough.
type Trend struct {
	Change1h  *int `json:"change_1h"`
	Change24h *int `json:"change_24h"`
}

// ComputeTrend derives the deltas for current against history, which must be
// sorted ascending.
func ComputeTrend(now time.Time, current int, history []HistoryPoint) Trend {
	return Trend{
		Change1h:  delta(now.Add(-time.Hour), current, history),
		Change24h: delta(now.Add(-24*time.Hour), current, history),
	}
}

// HistoryAt returns the first point within TrendTolerance of target.
func HistoryAt(target time.Time, history []HistoryPoint) (HistoryPoint, bool) {
	tol := int64(TrendTolerance / time.Second)
	want := target.Unix()
	for _, p := range history {
		d := p.Timestamp - want
		if d >= -tol && d <= tol {
			return p, true
		}
	}
	return HistoryPoint{}, false
}

func delta(target time.Time, current int, history []HistoryPoint) *int {
	p, ok := HistoryAt(target, history)
	if !ok {
		return nil
	}
	d := current - p.AQI
	return &d
}
