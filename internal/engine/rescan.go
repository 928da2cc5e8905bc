package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
)

// RescanRequest is one window of the exhaustive archive rescan. The backlog
// is every product in ARCHIVE or a sub-category, ordered by product id.
type RescanRequest struct {
	// StaleBefore limits reclassification to sub-categories last updated
	// before it. Unresolved ARCHIVE items are always processed.
	StaleBefore *time.Time
	Offset      int
	// Limit is capped at the queue's MaxWindow; zero means MaxWindow.
	Limit       int
	Concurrency int
	ForceRescan bool
}

// StartRescan classifies one offset/limit window of the archive backlog.
// The summary's NextOffset is the offset for the following call, or nil
// once the backlog is exhausted.
func (q *ArchiveQueue) StartRescan(ctx context.Context, req RescanRequest) (*Job, error) {
	if req.Offset < 0 || req.Limit < 0 {
		return nil, fmt.Errorf("%w: offset and limit must not be negative", common.ErrInvalidConfig)
	}
	cfg, err := q.cfg.withConcurrency(req.Concurrency)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit == 0 || limit > cfg.MaxWindow {
		limit = cfg.MaxWindow
	}

	tiers := model.ArchiveTiers()
	counts, err := q.store.CountByTiers(ctx, tiers)
	if err != nil {
		return nil, fmt.Errorf("failed to count archive backlog: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	page, err := q.store.QueryByTiers(ctx, tiers, service.Page{Offset: req.Offset, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to load archive window: %w", err)
	}

	win := &window{offset: req.Offset, limit: limit, totalInDB: total}
	ids := make([]string, len(page))
	byID := make(map[string]model.TierAssignment, len(page))
	for i, a := range page {
		ids[i] = a.ProductID
		byID[a.ProductID] = a
	}

	spec := runSpec{
		label:  "archive rescan",
		ids:    ids,
		window: win,
		prepare: func(ctx context.Context) (prepared, error) {
			products, err := q.store.GetProductsByIDs(ctx, ids)
			if err != nil {
				return prepared{}, fmt.Errorf("failed to load products: %w", err)
			}
			found := make(map[string]model.Product, len(products))
			for _, p := range products {
				found[p.ID] = p
			}

			var plan prepared
			plan.skipReason = "missing from the catalogue or recently classified"
			for pos, a := range page {
				p, ok := found[a.ProductID]
				stale := req.ForceRescan || req.StaleBefore == nil || !a.HasArchiveSub() || a.UpdatedAt.Before(*req.StaleBefore)
				if !ok || !stale {
					plan.skipped = append(plan.skipped, model.SkippedItem{ProductID: a.ProductID, Category: a.Tier})
					continue
				}
				plan.items = append(plan.items, planItem{product: p, pos: pos})
			}
			return plan, nil
		},
		handle: func(ctx context.Context, em *emitter, item planItem) {
			current := byID[item.product.ID]
			q.classifyOne(ctx, em, item.product, &current)
		},
	}

	return q.runner(cfg).start(ctx, spec), nil
}

// Rescan runs one window and waits for it.
func (q *ArchiveQueue) Rescan(ctx context.Context, req RescanRequest) (Summary, error) {
	job, err := q.StartRescan(ctx, req)
	if err != nil {
		return Summary{}, err
	}
	return job.Wait()
}

// RescanAll walks the backlog window by window until NextOffset is nil or a
// window is interrupted. Each window's summary is passed to onWindow,
// including one that was aborted, whose NextOffset says where to resume.
func (q *ArchiveQueue) RescanAll(ctx context.Context, req RescanRequest, onWindow func(Summary)) error {
	for {
		summary, err := q.Rescan(ctx, req)
		if onWindow != nil && summary.RunID != "" {
			onWindow(summary)
		}
		if err != nil {
			return err
		}
		if summary.NextOffset == nil || summary.Interrupted {
			return nil
		}
		req.Offset = *summary.NextOffset
	}
}
