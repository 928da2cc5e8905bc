package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Snapshot errors.
var (
	ErrSnapshotNotFound    = errors.New("snapshot not found")
	ErrSnapshotExists      = errors.New("snapshot already exists")
	ErrSnapshotUnsupported = errors.New("snapshots require a file-backed database")
	ErrInvalidSnapshotTag  = errors.New("invalid snapshot tag")
)

// SnapshotManager copies the SQLite database aside before destructive runs.
type SnapshotManager struct {
	db           *sql.DB
	dbPath       string
	snapshotsDir string
}

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	CreatedAt     time.Time      `json:"created_at"`
	RowCounts     map[string]int `json:"row_counts"`
	ID            string         `json:"id"`
	Description   string         `json:"description"`
	FileSize      int64          `json:"file_size"`
	SchemaVersion int            `json:"schema_version"`
	IsAuto        bool           `json:"is_auto"`
}

// Assignments returns the number of tier assignments captured.
func (i SnapshotInfo) Assignments() int {
	return i.RowCounts["tier_assignments"]
}

// NewSnapshotManager creates a manager storing snapshots next to dbPath.
func NewSnapshotManager(db *sql.DB, dbPath string) (*SnapshotManager, error) {
	if dbPath == "" || dbPath == ":memory:" {
		return nil, ErrSnapshotUnsupported
	}

	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	dir := filepath.Join(filepath.Dir(absPath), "snapshots")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	return &SnapshotManager{
		db:           db,
		dbPath:       absPath,
		snapshotsDir: dir,
	}, nil
}

// Create writes a consistent copy of the database under tag.
func (sm *SnapshotManager) Create(ctx context.Context, tag, description string, auto bool) (*SnapshotInfo, error) {
	if tag == "" {
		tag = "snapshot-" + time.Now().Format("2006-01-02-150405")
	}
	if err := validateTag(tag); err != nil {
		return nil, err
	}

	dbFile := sm.dbFile(tag)
	if _, err := os.Stat(dbFile); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotExists, tag)
	}

	var schemaVersion int
	if err := sm.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&schemaVersion); err != nil {
		return nil, fmt.Errorf("failed to get schema version: %w", err)
	}

	counts, err := sm.rowCounts(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := sm.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	// dbFile is built from a validated tag under an absolute directory.
	if strings.ContainsAny(dbFile, `'";`) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSnapshotTag, tag)
	}
	if _, err := sm.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dbFile)); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	stat, err := os.Stat(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	info := SnapshotInfo{
		ID:            tag,
		CreatedAt:     time.Now(),
		Description:   description,
		FileSize:      stat.Size(),
		RowCounts:     counts,
		SchemaVersion: schemaVersion,
		IsAuto:        auto,
	}

	if err := sm.writeMeta(info); err != nil {
		if rmErr := os.Remove(dbFile); rmErr != nil {
			slog.Error("failed to remove snapshot after metadata failure", "error", rmErr)
		}
		return nil, err
	}

	if err := sm.recordInDB(ctx, info); err != nil {
		slog.Warn("failed to record snapshot metadata in database", "error", err)
	}

	return &info, nil
}

// List returns snapshots newest first. Unreadable metadata files are skipped.
func (sm *SnapshotManager) List(_ context.Context) ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(sm.snapshotsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots directory: %w", err)
	}

	var out []SnapshotInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		info, err := sm.readMeta(filepath.Join(sm.snapshotsDir, entry.Name()))
		if err != nil {
			slog.Debug("skipping unreadable snapshot metadata", "file", entry.Name(), "error", err)
			continue
		}
		out = append(out, *info)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes a snapshot and its metadata.
func (sm *SnapshotManager) Delete(ctx context.Context, id string) error {
	if err := validateTag(id); err != nil {
		return err
	}

	if err := os.Remove(sm.dbFile(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	if err := os.Remove(sm.metaFile(id)); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove snapshot metadata", "id", id, "error", err)
	}
	if _, err := sm.db.ExecContext(ctx, "DELETE FROM snapshot_metadata WHERE id = ?", id); err != nil {
		slog.Debug("failed to remove snapshot metadata row", "id", id, "error", err)
	}
	return nil
}

// AutoSnapshot takes a snapshot before an operation named prefix and keeps
// only the newest keep automatic snapshots.
func (sm *SnapshotManager) AutoSnapshot(ctx context.Context, prefix string, keep int) (*SnapshotInfo, error) {
	tag := fmt.Sprintf("auto-%s-%s", prefix, time.Now().Format("20060102-150405.000000000"))
	info, err := sm.Create(ctx, tag, "Automatic snapshot before "+prefix, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create automatic snapshot: %w", err)
	}

	if err := sm.prune(ctx, keep); err != nil {
		slog.Warn("failed to prune automatic snapshots", "error", err)
	}
	return info, nil
}

func (sm *SnapshotManager) prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	all, err := sm.List(ctx)
	if err != nil {
		return err
	}

	seen := 0
	for _, info := range all {
		if !info.IsAuto {
			continue
		}
		seen++
		if seen > keep {
			if err := sm.Delete(ctx, info.ID); err != nil {
				slog.Debug("failed to delete old snapshot", "id", info.ID, "error", err)
			}
		}
	}
	return nil
}

func (sm *SnapshotManager) rowCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"products", "tier_assignments", "tier_moves", "vision_analysis"} {
		var n int
		// table names come from the fixed list above.
		if err := sm.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

func (sm *SnapshotManager) writeMeta(info SnapshotInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot metadata: %w", err)
	}
	tmp := sm.metaFile(info.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot metadata: %w", err)
	}
	return os.Rename(tmp, sm.metaFile(info.ID))
}

func (sm *SnapshotManager) readMeta(path string) (*SnapshotInfo, error) {
	// #nosec G304 - path is produced by ReadDir inside snapshotsDir
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info SnapshotInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (sm *SnapshotManager) recordInDB(ctx context.Context, info SnapshotInfo) error {
	counts, err := json.Marshal(info.RowCounts)
	if err != nil {
		return err
	}
	_, err = sm.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshot_metadata
		(id, created_at, description, file_size, row_counts, schema_version, is_auto)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, info.ID, info.CreatedAt, info.Description, info.FileSize, string(counts), info.SchemaVersion, info.IsAuto)
	return err
}

func (sm *SnapshotManager) dbFile(id string) string {
	return filepath.Join(sm.snapshotsDir, id+".db")
}

func (sm *SnapshotManager) metaFile(id string) string {
	return filepath.Join(sm.snapshotsDir, id+".meta.json")
}

func validateTag(tag string) error {
	if tag == "" || strings.ContainsAny(tag, `/\'";`) || strings.Contains(tag, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidSnapshotTag, tag)
	}
	return nil
}
