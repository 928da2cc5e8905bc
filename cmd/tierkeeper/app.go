package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/tierkeeper/internal/classification"
	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/config"
	"github.com/Veraticus/tierkeeper/internal/engine"
	"github.com/Veraticus/tierkeeper/internal/llm"
	"github.com/Veraticus/tierkeeper/internal/service"
	"github.com/Veraticus/tierkeeper/internal/storage"
)

const mockProvider = "mock"

var envKeyReplacer = strings.NewReplacer(".", "_")

// app holds what every command needs: configuration, storage and logger.
type app struct {
	cfg     *config.Config
	store   service.Storage
	tables  *classification.Tables
	logger  *slog.Logger
	prov    *providers
	closers []func()
}

// newApp loads configuration and opens the migrated store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	a := &app{
		cfg:    cfg,
		store:  store,
		tables: classification.DefaultTables(),
		logger: slog.Default(),
	}
	a.closers = append(a.closers, func() { _ = store.Close() })
	return a, nil
}

// Close releases everything the app opened, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// providers are the classification collaborators built from the llm section.
type providers struct {
	classifier engine.ArchiveClassifier
	analyzer   engine.VisionAnalyzer
	limiter    engine.Limiter
}

// providers builds the configured provider once; both queues share its
// rate limiter. The mock provider classifies from keywords alone and has no
// vision analyzer.
func (a *app) providers(ctx context.Context) (*providers, error) {
	if a.prov != nil {
		return a.prov, nil
	}
	if strings.EqualFold(a.cfg.LLM.Provider, mockProvider) {
		a.logger.Warn("Using the offline mock classifier")
		a.prov = &providers{classifier: engine.NewMockClassifier(a.tables)}
		return a.prov, nil
	}

	if a.cfg.LLM.APIKey == "" {
		return nil, common.NewUserError(
			fmt.Sprintf("No API key for provider %q. Set llm.api_key or the provider's API key variable.", a.cfg.LLM.Provider),
			fmt.Errorf("%w: llm.api_key", common.ErrMissingConfig))
	}

	client, err := llm.NewClient(ctx, a.cfg.LLM, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	limiter := llm.NewRateLimiter(a.cfg.LLM.RateLimit)
	images := llm.NewImageFetcher(a.cfg.LLM.RequestTimeout, a.cfg.LLM.ImageCacheTTL, a.logger)
	a.closers = append(a.closers, limiter.Close, images.Close)

	a.prov = &providers{
		classifier: llm.NewArchiveClassifier(client, images, a.tables, a.logger),
		analyzer:   llm.NewVisionAnalyzer(client, images, a.logger),
		limiter:    limiter,
	}
	return a.prov, nil
}

func (a *app) archiveQueue(ctx context.Context) (*engine.ArchiveQueue, error) {
	p, err := a.providers(ctx)
	if err != nil {
		return nil, err
	}
	return engine.NewArchiveQueue(a.store, p.classifier, p.limiter, a.cfg.ArchiveQueue, a.logger)
}

func (a *app) visionQueue(ctx context.Context) (*engine.VisionQueue, error) {
	p, err := a.providers(ctx)
	if err != nil {
		return nil, err
	}
	if p.analyzer == nil {
		return nil, common.NewUserError("Vision analysis needs a real provider; set llm.provider to gemini or anthropic.",
			fmt.Errorf("%w: llm.provider %s", common.ErrInvalidConfig, a.cfg.LLM.Provider))
	}
	return engine.NewVisionQueue(a.store, p.analyzer, p.limiter, a.cfg.VisionQueue, a.logger)
}

// rebalancer builds the rebalancer. On SQLite, applying takes an automatic
// snapshot first unless withSnapshots is false.
func (a *app) rebalancer(withSnapshots bool) (*engine.Rebalancer, error) {
	rcfg, err := a.cfg.Engine()
	if err != nil {
		return nil, err
	}
	r, err := engine.NewRebalancer(a.store, a.tables, a.cfg.Lifecycle, rcfg, a.logger)
	if err != nil {
		return nil, err
	}
	if !withSnapshots {
		return r, nil
	}

	sqlite, ok := a.store.(*storage.SQLiteStorage)
	if !ok {
		a.logger.Debug("Automatic snapshots are only available on SQLite", "driver", a.cfg.Database.Driver)
		return r, nil
	}
	snapshots, err := sqlite.NewSnapshotManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot manager: %w", err)
	}
	return r.WithSnapshots(snapshots, a.cfg.Rebalance.SnapshotKeep), nil
}

// snapshots returns the snapshot manager, which needs a file-backed SQLite store.
func (a *app) snapshots() (*storage.SnapshotManager, error) {
	sqlite, ok := a.store.(*storage.SQLiteStorage)
	if !ok {
		return nil, common.NewUserError("Snapshots are only supported with the sqlite driver.", storage.ErrSnapshotUnsupported)
	}
	return sqlite.NewSnapshotManager()
}
