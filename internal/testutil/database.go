// Package testutil provides test databases seeded with a product catalogue.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/tierkeeper/internal/storage"
	"github.com/Veraticus/tierkeeper/internal/testutil/catalog"
)

// TestDB is a migrated SQLite database scoped to one test.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
	Catalog catalog.Catalog
	Path    string
}

// SetupTestDB creates an empty, migrated database in the test's temp dir.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tierkeeper.db")
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, Path: path, t: t}
}

// SetupTestDBWithBuilder creates a database and seeds it from a catalogue builder.
//
// Example:
//
//	db := testutil.SetupTestDBWithBuilder(t, func(b catalog.Builder) catalog.Builder {
//		return b.WithCohort(model.TierNew, 250, "new")
//	})
func SetupTestDBWithBuilder(t *testing.T, configure func(catalog.Builder) catalog.Builder) *TestDB {
	t.Helper()

	db := SetupTestDB(t)
	builder := catalog.NewBuilder(t)
	if configure != nil {
		builder = configure(builder)
	}

	cat, err := builder.Build(context.Background(), db.Storage)
	if err != nil {
		t.Fatalf("failed to seed catalogue: %v", err)
	}
	db.Catalog = cat
	return db
}

// MustTier returns the stored tier of a product or fails the test.
func (db *TestDB) MustTier(productID string) string {
	db.t.Helper()
	a, err := db.Storage.GetAssignment(context.Background(), productID)
	if err != nil {
		db.t.Fatalf("no assignment for %s: %v", productID, err)
	}
	return string(a.Tier)
}
