package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/service"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a storage backend.
type Options struct {
	Driver   string
	Path     string
	DSN      string
	MaxConns int32
}

// Open connects to the configured backend and runs migrations.
func Open(ctx context.Context, opts Options) (service.Storage, error) {
	var (
		store service.Storage
		err   error
	)

	switch opts.Driver {
	case DriverSQLite, "":
		store, err = NewSQLiteStorage(opts.Path)
	case DriverPostgres:
		store, err = NewPostgresStorage(ctx, opts.DSN, opts.MaxConns)
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", common.ErrInvalidConfig, opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}
