// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/Veraticus/tierkeeper/internal/model"
)

// ProductStore persists the product catalogue.
type ProductStore interface {
	SaveProducts(ctx context.Context, products []model.Product) error
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	GetProducts(ctx context.Context) ([]model.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error)
}

// AssignmentStore persists tier assignments. Every write is an upsert keyed
// by product id.
type AssignmentStore interface {
	GetAssignment(ctx context.Context, productID string) (*model.TierAssignment, error)
	GetAssignments(ctx context.Context, productIDs []string) (map[string]model.TierAssignment, error)
	UpsertAssignment(ctx context.Context, assignment model.TierAssignment) error
	BulkUpsertAssignments(ctx context.Context, assignments []model.TierAssignment) error
	QueryByTier(ctx context.Context, tier model.Tier) ([]model.TierAssignment, error)
	QueryByTiers(ctx context.Context, tiers []model.Tier, page Page) ([]model.TierAssignment, error)
	CountByTiers(ctx context.Context, tiers []model.Tier) (map[model.Tier]int, error)
}

// MoveLog is the append-only record of tier moves.
type MoveLog interface {
	AppendMoves(ctx context.Context, moves []model.TierMove) error
	GetMoveHistory(ctx context.Context, productID string) ([]model.TierMove, error)
}

// VisionStore persists general vision analyses.
type VisionStore interface {
	SaveVisionAnalysis(ctx context.Context, analysis model.VisionAnalysis) error
	GetVisionAnalyses(ctx context.Context, productIDs []string) (map[string]model.VisionAnalysis, error)
	GetVisionStats(ctx context.Context) (*model.VisionStats, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	ProductStore
	AssignmentStore
	MoveLog
	VisionStore

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Page is an offset/limit window. A zero Limit means no limit.
type Page struct {
	Offset int
	Limit  int
}
