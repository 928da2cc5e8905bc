package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
)

// ArchiveStore is the storage the archive queue needs.
type ArchiveStore interface {
	service.ProductStore
	service.AssignmentStore
	service.MoveLog
}

// ClassifyRequest is one archive classification run.
type ClassifyRequest struct {
	Products []model.Product
	// SkipClassified excludes products already holding an archive sub-category.
	SkipClassified bool
	// ForceRescan overrides SkipClassified.
	ForceRescan bool
	// Concurrency overrides the configured worker count when positive.
	Concurrency int
}

// ArchiveQueue resolves archive sub-categories through a bounded, rate
// limited worker pool, persisting each result as soon as it arrives.
type ArchiveQueue struct {
	store      ArchiveStore
	classifier ArchiveClassifier
	limiter    Limiter
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	cfg        QueueConfig
}

// NewArchiveQueue creates an archive queue.
func NewArchiveQueue(store ArchiveStore, classifier ArchiveClassifier, limiter Limiter, cfg QueueConfig, logger *slog.Logger) (*ArchiveQueue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || classifier == nil {
		return nil, fmt.Errorf("%w: archive queue needs a store and a classifier", common.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveQueue{
		store:      store,
		classifier: classifier,
		limiter:    limiter,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (q *ArchiveQueue) runner(cfg QueueConfig) *runner {
	return &runner{
		cfg:     cfg,
		limiter: q.limiter,
		logger:  q.logger,
		now:     q.now,
		sleep:   q.sleep,
	}
}

// Start validates req and launches the run. Configuration errors are
// returned before any work starts.
func (q *ArchiveQueue) Start(ctx context.Context, req ClassifyRequest) (*Job, error) {
	if len(req.Products) == 0 {
		return nil, common.ErrNoCandidates
	}
	cfg, err := q.cfg.withConcurrency(req.Concurrency)
	if err != nil {
		return nil, err
	}

	products := dedupeProducts(req.Products)
	ids := productIDs(products)
	skip := req.SkipClassified && !req.ForceRescan

	var existing map[string]model.TierAssignment
	spec := runSpec{
		label: "archive classification",
		ids:   ids,
		prepare: func(ctx context.Context) (prepared, error) {
			var err error
			existing, err = q.store.GetAssignments(ctx, ids)
			if err != nil {
				return prepared{}, fmt.Errorf("skip filter lookup failed: %w", err)
			}

			var plan prepared
			plan.skipReason = "already hold an archive sub-category"
			for pos, p := range products {
				if a, ok := existing[p.ID]; skip && ok && a.HasArchiveSub() {
					plan.skipped = append(plan.skipped, model.SkippedItem{ProductID: p.ID, Category: a.Tier})
					continue
				}
				plan.items = append(plan.items, planItem{product: p, pos: pos})
			}
			return plan, nil
		},
	}
	spec.handle = func(ctx context.Context, em *emitter, item planItem) {
		var current *model.TierAssignment
		if a, ok := existing[item.product.ID]; ok {
			current = &a
		}
		q.classifyOne(ctx, em, item.product, current)
	}

	return q.runner(cfg).start(ctx, spec), nil
}

// Run starts a run and waits for it.
func (q *ArchiveQueue) Run(ctx context.Context, req ClassifyRequest) (Summary, error) {
	job, err := q.Start(ctx, req)
	if err != nil {
		return Summary{}, err
	}
	return job.Wait()
}

func (q *ArchiveQueue) classifyOne(ctx context.Context, em *emitter, p model.Product, current *model.TierAssignment) {
	logger := q.logger.With("run_id", em.runID, "product_id", p.ID)

	result, err := callWithTimeout(ctx, q.cfg.ItemTimeout, func(ctx context.Context) (model.ArchiveResult, error) {
		return q.classifier.Classify(ctx, p)
	})
	if err == nil && !result.Category.IsArchiveSub() {
		err = fmt.Errorf("%w: classifier returned %q", common.ErrClassificationFailed, result.Category)
	}
	if err != nil {
		q.fail(ctx, em, logger, p, current, err)
		return
	}

	assignment := model.TierAssignment{
		ProductID:  p.ID,
		Tier:       result.Category,
		Reason:     result.Reason,
		Confidence: result.Confidence,
		UpdatedAt:  q.now().UTC(),
	}
	if err := q.store.UpsertAssignment(ctx, assignment); err != nil {
		logger.Error("failed to persist classification", "tier", result.Category, "error", err)
		em.finish(ctx, ItemResult{ProductID: p.ID, Status: ItemFailed, Cause: err.Error()}, model.Event{
			Type:        model.EventError,
			ProductID:   p.ID,
			ProductName: p.Name,
			Cause:       "storage: " + err.Error(),
			Message:     fmt.Sprintf("%s classified as %s but not saved", p.ID, result.Category),
		})
		return
	}
	q.logMove(ctx, logger, em.runID, p.ID, current, result.Category, model.ReasonClassified)

	em.finish(ctx, ItemResult{
		ProductID:  p.ID,
		Status:     ItemCompleted,
		Category:   result.Category,
		Confidence: result.Confidence,
	}, model.Event{
		Type:        model.EventResult,
		ProductID:   p.ID,
		ProductName: p.Name,
		Category:    result.Category,
		Confidence:  result.Confidence,
		Reason:      result.Reason,
		Message:     fmt.Sprintf("%s → %s (%d%%)", p.ID, result.Category, result.Confidence),
	})
}

// fail records a provider failure. Products without a sub-category fall back
// to the generic ARCHIVE tier; ones that already hold a sub-category keep it.
func (q *ArchiveQueue) fail(ctx context.Context, em *emitter, logger *slog.Logger, p model.Product, current *model.TierAssignment, cause error) {
	logger.Warn("classification failed", "error", cause)

	res := ItemResult{ProductID: p.ID, Status: ItemFailed, Cause: cause.Error()}
	ev := model.Event{
		Type:        model.EventError,
		ProductID:   p.ID,
		ProductName: p.Name,
		Cause:       cause.Error(),
	}

	if current.HasArchiveSub() {
		res.Category = current.Tier
		ev.Category = current.Tier
		ev.Message = fmt.Sprintf("%s failed, keeping %s", p.ID, current.Tier)
		em.finish(ctx, res, ev)
		return
	}

	fallback := model.TierAssignment{
		ProductID: p.ID,
		Tier:      model.TierArchive,
		Reason:    model.ReasonFallback + ": " + firstLine(cause.Error()),
		UpdatedAt: q.now().UTC(),
	}
	if err := q.store.UpsertAssignment(ctx, fallback); err != nil {
		logger.Error("failed to persist fallback", "error", err)
		ev.Cause = fmt.Sprintf("%s; storage: %v", ev.Cause, err)
		ev.Message = fmt.Sprintf("%s failed and fallback was not saved", p.ID)
		em.finish(ctx, res, ev)
		return
	}
	q.logMove(ctx, logger, em.runID, p.ID, current, model.TierArchive, model.ReasonFallback)

	res.Category = model.TierArchive
	res.Fallback = true
	ev.Category = model.TierArchive
	ev.Fallback = true
	ev.Message = fmt.Sprintf("%s failed, fell back to %s", p.ID, model.TierArchive)
	em.finish(ctx, res, ev)
}

// logMove appends to the move log when the tier changed. Failures are logged only.
func (q *ArchiveQueue) logMove(ctx context.Context, logger *slog.Logger, runID, productID string, current *model.TierAssignment, to model.Tier, reason string) {
	var from model.Tier
	if current != nil {
		from = current.Tier
	}
	if from == to {
		return
	}
	move := model.TierMove{
		RunID:     runID,
		ProductID: productID,
		From:      from,
		To:        to,
		Reason:    reason,
		MovedAt:   q.now().UTC(),
	}
	if err := q.store.AppendMoves(ctx, []model.TierMove{move}); err != nil {
		logger.Warn("failed to record move", "from", from, "to", to, "error", err)
	}
}

func dedupeProducts(products []model.Product) []model.Product {
	seen := make(map[string]bool, len(products))
	out := make([]model.Product, 0, len(products))
	for _, p := range products {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

func productIDs(products []model.Product) []string {
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
