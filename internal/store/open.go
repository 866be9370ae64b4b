package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects the configured backend. target is the SQLite file path or the
// Postgres DSN.
func Open(ctx context.Context, driver, target string, logger zerolog.Logger) (DataStore, error) {
	switch driver {
	case DriverSQLite, "":
		if dir := filepath.Dir(target); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		s, err := NewSQLiteStore(target)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("path", target).Msg("SQLite store initialized")
		return s, nil
	case DriverPostgres:
		return NewPostgresStore(ctx, target, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}
