package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
)

// VisionRequest is one vision analysis run.
type VisionRequest struct {
	Products []model.Product
	// Force re-analyzes products that already have a completed analysis.
	Force       bool
	Concurrency int
}

// VisionQueue drives general vision analysis through the same bounded pool
// as the archive queue.
type VisionQueue struct {
	store    service.VisionStore
	analyzer VisionAnalyzer
	limiter  Limiter
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	cfg      QueueConfig
}

// NewVisionQueue creates a vision queue.
func NewVisionQueue(store service.VisionStore, analyzer VisionAnalyzer, limiter Limiter, cfg QueueConfig, logger *slog.Logger) (*VisionQueue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || analyzer == nil {
		return nil, fmt.Errorf("%w: vision queue needs a store and an analyzer", common.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VisionQueue{
		store:    store,
		analyzer: analyzer,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start launches a vision run.
func (q *VisionQueue) Start(ctx context.Context, req VisionRequest) (*Job, error) {
	if len(req.Products) == 0 {
		return nil, common.ErrNoCandidates
	}
	cfg, err := q.cfg.withConcurrency(req.Concurrency)
	if err != nil {
		return nil, err
	}

	products := dedupeProducts(req.Products)
	ids := productIDs(products)

	spec := runSpec{
		label: "vision analysis",
		ids:   ids,
		prepare: func(ctx context.Context) (prepared, error) {
			var plan prepared
			plan.skipReason = "already analyzed"
			if req.Force {
				for pos, p := range products {
					plan.items = append(plan.items, planItem{product: p, pos: pos})
				}
				return plan, nil
			}

			existing, err := q.store.GetVisionAnalyses(ctx, ids)
			if err != nil {
				return prepared{}, fmt.Errorf("skip filter lookup failed: %w", err)
			}
			for pos, p := range products {
				if a, ok := existing[p.ID]; ok && a.Status == model.VisionCompleted {
					plan.skipped = append(plan.skipped, model.SkippedItem{ProductID: p.ID})
					continue
				}
				plan.items = append(plan.items, planItem{product: p, pos: pos})
			}
			return plan, nil
		},
		handle: q.analyzeOne,
	}

	r := &runner{cfg: cfg, limiter: q.limiter, logger: q.logger, now: q.now, sleep: q.sleep}
	return r.start(ctx, spec), nil
}

// Run starts a vision run and waits for it.
func (q *VisionQueue) Run(ctx context.Context, req VisionRequest) (Summary, error) {
	job, err := q.Start(ctx, req)
	if err != nil {
		return Summary{}, err
	}
	return job.Wait()
}

func (q *VisionQueue) analyzeOne(ctx context.Context, em *emitter, item planItem) {
	p := item.product
	logger := q.logger.With("run_id", em.runID, "product_id", p.ID)

	if err := q.store.SaveVisionAnalysis(ctx, model.VisionAnalysis{ProductID: p.ID, Status: model.VisionProcessing}); err != nil {
		logger.Warn("failed to mark analysis processing", "error", err)
	}

	analysis, err := callWithTimeout(ctx, q.cfg.ItemTimeout, func(ctx context.Context) (model.VisionAnalysis, error) {
		return q.analyzer.Analyze(ctx, p)
	})
	if err != nil {
		logger.Warn("vision analysis failed", "error", err)
		failed := model.VisionAnalysis{
			ProductID:    p.ID,
			Status:       model.VisionFailed,
			AnalyzedAt:   q.now().UTC(),
			ErrorMessage: err.Error(),
		}
		if saveErr := q.store.SaveVisionAnalysis(ctx, failed); saveErr != nil {
			logger.Error("failed to record vision failure", "error", saveErr)
		}
		em.finish(ctx, ItemResult{ProductID: p.ID, Status: ItemFailed, Cause: err.Error()}, model.Event{
			Type:        model.EventError,
			ProductID:   p.ID,
			ProductName: p.Name,
			Cause:       err.Error(),
			Message:     fmt.Sprintf("%s analysis failed", p.ID),
		})
		return
	}

	analysis.ProductID = p.ID
	analysis.Status = model.VisionCompleted
	if analysis.AnalyzedAt.IsZero() {
		analysis.AnalyzedAt = q.now().UTC()
	}
	if err := q.store.SaveVisionAnalysis(ctx, analysis); err != nil {
		logger.Error("failed to persist vision analysis", "error", err)
		em.finish(ctx, ItemResult{ProductID: p.ID, Status: ItemFailed, Cause: err.Error()}, model.Event{
			Type:        model.EventError,
			ProductID:   p.ID,
			ProductName: p.Name,
			Cause:       "storage: " + err.Error(),
			Message:     fmt.Sprintf("%s analyzed but not saved", p.ID),
		})
		return
	}

	em.finish(ctx, ItemResult{ProductID: p.ID, Status: ItemCompleted, Confidence: analysis.Confidence}, model.Event{
		Type:        model.EventResult,
		ProductID:   p.ID,
		ProductName: p.Name,
		Confidence:  analysis.Confidence,
		Vision:      &analysis,
		Message:     fmt.Sprintf("%s: %s grade %s", p.ID, analysis.ClothingType, analysis.Grade),
	})
}
