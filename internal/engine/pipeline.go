package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
)

// CycleResult reports one pipeline cycle.
type CycleResult struct {
	Plan           *Plan    `json:"plan"`
	Classification *Summary `json:"classification,omitempty"`
}

// Pipeline chains a rebalance with classification of the unresolved ARCHIVE bucket.
type Pipeline struct {
	store      ArchiveStore
	rebalancer *Rebalancer
	queue      *ArchiveQueue
	logger     *slog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(store ArchiveStore, rebalancer *Rebalancer, queue *ArchiveQueue, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      store,
		rebalancer: rebalancer,
		queue:      queue,
		logger:     logger,
	}
}

// RunCycle rebalances, then sends every product left in the unresolved
// ARCHIVE bucket through the archive queue with the skip filter on.
func (p *Pipeline) RunCycle(ctx context.Context) (*CycleResult, error) {
	plan, err := p.rebalancer.Run(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("rebalance failed: %w", err)
	}
	result := &CycleResult{Plan: plan}

	unresolved, err := p.store.QueryByTier(ctx, model.TierArchive)
	if err != nil {
		return result, fmt.Errorf("failed to load unresolved archive bucket: %w", err)
	}
	if len(unresolved) == 0 {
		p.logger.Info("no unresolved archive products")
		return result, nil
	}

	ids := make([]string, len(unresolved))
	for i, a := range unresolved {
		ids[i] = a.ProductID
	}
	products, err := p.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("failed to load archive products: %w", err)
	}

	summary, err := p.queue.Run(ctx, ClassifyRequest{Products: products, SkipClassified: true})
	if errors.Is(err, common.ErrNoCandidates) {
		return result, nil
	}
	result.Classification = &summary
	if err != nil {
		return result, fmt.Errorf("archive classification failed: %w", err)
	}
	return result, nil
}
