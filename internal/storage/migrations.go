package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Product catalogue",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS products (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					price TEXT NOT NULL DEFAULT '0',
					image_url TEXT,
					extra_image_urls TEXT,
					display_category_ids TEXT,
					registered_at DATETIME,
					brand TEXT,
					brand_tier TEXT,
					grade TEXT,
					status TEXT,
					stock INTEGER DEFAULT 0,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Tier assignments",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS tier_assignments (
					product_id TEXT PRIMARY KEY,
					tier TEXT NOT NULL,
					reason TEXT,
					confidence INTEGER DEFAULT 0,
					override_date DATETIME,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_tier_assignments_tier ON tier_assignments(tier, product_id)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Append-only tier move log",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS tier_moves (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT,
					product_id TEXT NOT NULL,
					from_tier TEXT,
					to_tier TEXT NOT NULL,
					reason TEXT,
					moved_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_tier_moves_product ON tier_moves(product_id, moved_at)`,
				`CREATE INDEX IF NOT EXISTS idx_tier_moves_run ON tier_moves(run_id)`,
			)
		},
	},
	{
		Version:     4,
		Description: "Vision analysis results",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS vision_analysis (
					product_id TEXT PRIMARY KEY,
					status TEXT NOT NULL,
					brand TEXT,
					clothing_type TEXT,
					clothing_sub_type TEXT,
					gender TEXT,
					grade TEXT,
					grade_reason TEXT,
					colors TEXT,
					pattern TEXT,
					fabric TEXT,
					size TEXT,
					confidence INTEGER DEFAULT 0,
					error_message TEXT,
					analyzed_at DATETIME
				)`,
				`CREATE INDEX IF NOT EXISTS idx_vision_analysis_status ON vision_analysis(status)`,
			)
		},
	},
	{
		Version:     5,
		Description: "Snapshot metadata",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS snapshot_metadata (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					description TEXT,
					file_size INTEGER,
					row_counts TEXT,
					schema_version INTEGER,
					is_auto BOOLEAN DEFAULT 0
				)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Migrate runs all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Debug("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
