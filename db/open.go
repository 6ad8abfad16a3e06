package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open opens the database for the given driver ("sqlite" or "postgres") and
// applies connection settings appropriate to each backend.
func Open(driver, dsn string) (*CompatDB, error) {
	switch driver {
	case "sqlite", "":
		raw, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// Single connection: prevents concurrent write conflicts.
		raw.SetMaxOpenConns(1)
		raw.SetMaxIdleConns(1)
		raw.SetConnMaxLifetime(0)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
			"PRAGMA synchronous=NORMAL",
		} {
			if _, err := raw.Exec(pragma); err != nil {
				raw.Close()
				return nil, fmt.Errorf("pragma (%s): %w", pragma, err)
			}
		}
		return NewCompatDB(raw, DialectSQLite), nil
	case "postgres":
		raw, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		raw.SetMaxOpenConns(10)
		raw.SetMaxIdleConns(5)
		raw.SetConnMaxLifetime(30 * time.Minute)
		if err := raw.Ping(); err != nil {
			raw.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return NewCompatDB(raw, DialectPostgres), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q (want sqlite or postgres)", driver)
	}
}
