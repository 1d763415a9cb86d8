// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"wbpmisueso/internal/database"

	"gorm.io/gorm"
)

// New returns a migrated SQLite database living in t.TempDir().
func New(t testing.TB) *gorm.DB {
	t.Helper()
	db := Empty(t)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	return db
}

// Empty returns an SQLite database with no tables.
func Empty(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(context.Background(), database.Options{
		Driver: "sqlite",
		DSN:    path,
		Quiet:  true,
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })
	return db
}
