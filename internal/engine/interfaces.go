package engine

import (
	"context"

	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/storage"
)

// ArchiveClassifier resolves a product into an archive sub-category.
type ArchiveClassifier interface {
	Classify(ctx context.Context, product model.Product) (model.ArchiveResult, error)
}

// VisionAnalyzer describes a product from its photos.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, product model.Product) (model.VisionAnalysis, error)
}

// Limiter hands out provider request tokens.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Snapshotter backs up the store before a rebalance is applied.
type Snapshotter interface {
	AutoSnapshot(ctx context.Context, prefix string, keep int) (*storage.SnapshotInfo, error)
}
