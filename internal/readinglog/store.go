// Package readinglog keeps a short rolling log of particulate readings per
// zone for providers that only report current values.
package readinglog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"
)

// DefaultRetention is how long records are kept.
const DefaultRetention = 26 * time.Hour

var (
	// ErrInvalidZoneID is returned for zone ids that cannot name a file or object.
	ErrInvalidZoneID = errors.New("invalid zone id")

	// ErrCorruptLog is returned when a stored log cannot be decoded.
	ErrCorruptLog = errors.New("corrupt reading log")
)

var zoneIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Record is one logged reading. Nil values were not reported.
type Record struct {
	Timestamp int64    `json:"timestamp"`
	PM25      *float64 `json:"pm2_5"`
	PM10      *float64 `json:"pm10"`
}

// Time returns the record timestamp as a time.Time.
func (r Record) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// Store persists reading logs.
type Store interface {
	// Append adds a record and prunes records older than the retention.
	Append(ctx context.Context, zoneID string, rec Record) error

	// Load returns the retained records in timestamp order.
	Load(ctx context.Context, zoneID string) ([]Record, error)

	// Close releases backend resources.
	Close() error
}

func validateZoneID(zoneID string) error {
	if !zoneIDPattern.MatchString(zoneID) {
		return fmt.Errorf("%w: %q", ErrInvalidZoneID, zoneID)
	}
	return nil
}

func decode(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptLog, err)
	}
	return records, nil
}

func encode(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(records)
}

// prune drops records older than now-retention and sorts the rest by
// timestamp, keeping insertion order for equal timestamps.
func prune(records []Record, now time.Time, retention time.Duration) []Record {
	cutoff := now.Add(-retention).Unix()
	kept := records[:0]
	for _, r := range records {
		if r.Timestamp >= cutoff {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp < kept[j].Timestamp
	})
	return kept
}

// zoneLocks serialises read-modify-write cycles per zone.
type zoneLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (z *zoneLocks) lock(zoneID string) func() {
	z.mu.Lock()
	if z.locks == nil {
		z.locks = make(map[string]*sync.Mutex)
	}
	l, ok := z.locks[zoneID]
	if !ok {
		l = &sync.Mutex{}
		z.locks[zoneID] = l
	}
	z.mu.Unlock()

	l.Lock()
	return l.Unlock
}
