package readinglog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// LocalStore keeps one JSON file per zone in a directory.
type LocalStore struct {
	dir       string
	retention time.Duration
	now       func() time.Time
	locks     zoneLocks
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string, retention time.Duration, now func() time.Time) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("reading log directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reading log directory %s: %w", dir, err)
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return &LocalStore{dir: dir, retention: retention, now: now}, nil
}

// Append implements Store.
func (s *LocalStore) Append(ctx context.Context, zoneID string, rec Record) error {
	if err := validateZoneID(zoneID); err != nil {
		return err
	}
	unlock := s.locks.lock(zoneID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	records, err := s.read(zoneID)
	if err != nil {
		return err
	}
	records = prune(append(records, rec), s.now(), s.retention)

	data, err := encode(records)
	if err != nil {
		return fmt.Errorf("encode reading log: %w", err)
	}
	return s.write(zoneID, data)
}

// Load implements Store.
func (s *LocalStore) Load(ctx context.Context, zoneID string) ([]Record, error) {
	if err := validateZoneID(zoneID); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(zoneID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := s.read(zoneID)
	if err != nil {
		return nil, err
	}
	return prune(records, s.now(), s.retention), nil
}

// Close is a no-op for the local store.
func (s *LocalStore) Close() error {
	return nil
}

func (s *LocalStore) path(zoneID string) string {
	return filepath.Join(s.dir, zoneID+".json")
}

func (s *LocalStore) read(zoneID string) ([]Record, error) {
	data, err := os.ReadFile(s.path(zoneID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reading log %s: %w", zoneID, err)
	}
	return decode(data)
}

// write replaces the zone file through a temp file in the same directory.
func (s *LocalStore) write(zoneID string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, zoneID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(zoneID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace reading log %s: %w", zoneID, err)
	}
	return nil
}
