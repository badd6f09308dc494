package readinglog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS zone_readings (
		id          BIGSERIAL PRIMARY KEY,
		zone_id     TEXT NOT NULL,
		observed_at BIGINT NOT NULL,
		pm2_5       DOUBLE PRECISION,
		pm10        DOUBLE PRECISION
	);
	CREATE INDEX IF NOT EXISTS zone_readings_zone_observed
		ON zone_readings (zone_id, observed_at);
`

// pgPool is the subset of *pgxpool.Pool the store uses.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

var _ pgPool = (*pgxpool.Pool)(nil)

// PostgresStore keeps reading logs in a shared PostgreSQL table so several
// instances can append to the same zone.
type PostgresStore struct {
	pool      pgPool
	retention time.Duration
	now       func() time.Time
}

// NewPostgresStore creates the table if needed and returns a store that
// owns pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, retention time.Duration, now func() time.Time) (*PostgresStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create reading log table: %w", err)
	}
	return &PostgresStore{pool: pool, retention: retention, now: now}, nil
}

// Append inserts rec and deletes the zone's expired rows in one transaction.
func (s *PostgresStore) Append(ctx context.Context, zoneID string, rec Record) error {
	if err := validateZoneID(zoneID); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO zone_readings (zone_id, observed_at, pm2_5, pm10)
		VALUES ($1, $2, $3, $4)
	`, zoneID, rec.Timestamp, rec.PM25, rec.PM10)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM zone_readings
		WHERE zone_id = $1 AND observed_at < $2
	`, zoneID, s.cutoff())
	if err != nil {
		return fmt.Errorf("prune readings: %w", err)
	}

	return tx.Commit(ctx)
}

// Load returns the zone's retained rows in timestamp order.
func (s *PostgresStore) Load(ctx context.Context, zoneID string) ([]Record, error) {
	if err := validateZoneID(zoneID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT observed_at, pm2_5, pm10
		FROM zone_readings
		WHERE zone_id = $1 AND observed_at >= $2
		ORDER BY observed_at, id
	`, zoneID, s.cutoff())
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Timestamp, &rec.PM25, &rec.PM10); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read readings: %w", err)
	}
	return records, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) cutoff() int64 {
	return s.now().Add(-s.retention).Unix()
}
