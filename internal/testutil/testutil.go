// Package testutil holds small helpers shared by package tests.
package testutil

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"dmchat/internal/store/sqlite"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenDB opens a migrated in-memory SQLite database. The pool is pinned to a
// single connection so the in-memory database survives across statements.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if err := sqlite.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SeedUser inserts a user row and returns its id.
func SeedUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()

	res, err := db.Exec(
		`INSERT INTO users (username, hashed_password, is_active) VALUES (?, 'x', 1)`,
		username,
	)
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("seed user id: %v", err)
	}
	return id
}
