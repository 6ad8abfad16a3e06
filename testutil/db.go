// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"database/sql"
	"testing"

	"rechartable/db"

	_ "modernc.org/sqlite"
)

// OpenTestDB returns an in-memory SQLite database with migrations applied.
// A single connection keeps every query on the same in-memory instance.
func OpenTestDB(t *testing.T) *db.CompatDB {
	t.Helper()
	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	raw.SetMaxOpenConns(1)
	raw.SetMaxIdleConns(1)
	if _, err := raw.Exec("PRAGMA foreign_keys=ON"); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if err := db.RunMigrations(raw, db.DialectSQLite); err != nil {
		t.Fatalf("schema migration: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	return db.NewCompatDB(raw, db.DialectSQLite)
}
