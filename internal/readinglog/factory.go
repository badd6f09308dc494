package readinglog

import (
	"context"
	"fmt"
	"time"

	"github.com/breatheroute/zoneaqi/internal/database"
)

// Backend selects where reading logs are stored.
type Backend string

const (
	BackendLocal    Backend = "local"
	BackendGCS      Backend = "gcs"
	BackendPostgres Backend = "postgres"
)

// Config holds reading log settings.
type Config struct {
	Backend   Backend
	Dir       string
	Bucket    string
	Prefix    string
	Retention time.Duration
	Now       func() time.Time

	// Database is used by the postgres backend.
	Database database.Config
}

// NewStore creates the store for the configured backend.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return NewLocalStore(cfg.Dir, cfg.Retention, cfg.Now)
	case BackendGCS:
		return NewGCSStore(ctx, cfg.Bucket, cfg.Prefix, cfg.Retention, cfg.Now)
	case BackendPostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("reading log database: %w", err)
		}
		store, err := NewPostgresStore(ctx, pool, cfg.Retention, cfg.Now)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported reading log backend: %s", cfg.Backend)
	}
}
