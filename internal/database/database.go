package database

import (
	"context"
	"errors"
	"fmt"

	"cohort-extractor/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrUnsupportedDriver is returned by Open for driver names not linked into the binary.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// SupportedDrivers lists the database/sql driver names registered by this package.
var SupportedDrivers = []string{"postgres", "pgx"}

// Open opens a single connection to the clinical database and verifies it with a ping.
// The caller owns the returned handle and must Close it.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	if !isSupported(cfg.Driver) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection for the whole run
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close closes db if it is non-nil.
func Close(db *sqlx.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}

func isSupported(driver string) bool {
	for _, d := range SupportedDrivers {
		if d == driver {
			return true
		}
	}
	return false
}
