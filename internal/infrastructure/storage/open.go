// Package storage persists collection jobs and per-source results.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"PersonaCollector/internal/config"
	"PersonaCollector/internal/ports"
)

// Open connects the configured backend, applies migrations and returns the
// store with a function that releases it.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (ports.Store, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		info(logger, "using in-memory store")
		return NewMemoryStore(), func() error { return nil }, nil

	case config.DriverSQLite:
		db, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		info(logger, "sqlite store ready", "dsn", cfg.DSN)
		return NewSQLStore(db, DialectSQLite), db.Close, nil

	case config.DriverPostgres:
		pool, err := connectPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		db := stdlib.OpenDBFromPool(pool)
		if err := Migrate(ctx, db, DialectPostgres); err != nil {
			_ = db.Close()
			pool.Close()
			return nil, nil, err
		}
		info(logger, "postgres store ready")
		closer := func() error {
			err := db.Close()
			pool.Close()
			return err
		}
		return NewSQLStore(db, DialectPostgres), closer, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// OpenSQLite opens and migrates a SQLite database.
func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := Migrate(ctx, db, DialectSQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func connectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func info(logger *slog.Logger, msg string, args ...interface{}) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}
