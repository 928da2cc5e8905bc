package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/tierkeeper/internal/model"
)

const eventBuffer = 64

type planItem struct {
	product model.Product
	pos     int
}

// prepared is the work a run settled on after its skip filter.
type prepared struct {
	skipReason string
	items      []planItem
	skipped    []model.SkippedItem
}

// window describes an offset/limit slice of a larger backlog.
type window struct {
	offset    int
	limit     int
	totalInDB int
}

// resumeOffset is the offset a follow-up run starts at once the first
// completed plan items are done.
func resumeOffset(w *window, items []planItem, completed int) *int {
	if completed >= len(items) {
		return w.next()
	}
	offset := 0
	if w != nil {
		offset = w.offset
	}
	next := offset + items[completed].pos
	return &next
}

func (w *window) next() *int {
	if w == nil || w.offset+w.limit >= w.totalInDB {
		return nil
	}
	next := w.offset + w.limit
	return &next
}

// runner drives one job: start event, preparation, skip report, the batch
// pool, then the completion summary.
type runner struct {
	limiter Limiter
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	cfg     QueueConfig
}

type runSpec struct {
	prepare func(ctx context.Context) (prepared, error)
	handle  func(ctx context.Context, em *emitter, item planItem)
	window  *window
	label   string
	ids     []string
}

func (r *runner) start(ctx context.Context, spec runSpec) *Job {
	runID := uuid.NewString()
	job := newJob(runID, eventBuffer)
	em := newEmitter(runID, job.events, r.now)
	em.track(spec.ids, ItemPending)
	em.setTotal(len(spec.ids))

	go func() {
		defer close(job.done)
		defer close(job.events)
		job.summary, job.err = r.execute(ctx, em, spec)
	}()

	return job
}

func (r *runner) execute(ctx context.Context, em *emitter, spec runSpec) (Summary, error) {
	started := r.now()
	logger := r.logger.With("run_id", em.runID, "run", spec.label)

	startEvent := model.Event{
		Type:    model.EventStart,
		Message: fmt.Sprintf("%s started for %d products", spec.label, len(spec.ids)),
	}
	if spec.window != nil {
		startEvent.Offset = spec.window.offset
		startEvent.Limit = spec.window.limit
		startEvent.TotalInDB = spec.window.totalInDB
	}
	em.emit(ctx, startEvent)
	logger.Info("run started", "total", len(spec.ids), "concurrency", r.cfg.Concurrency)

	summarize := func() Summary {
		counters, results := em.snapshot()
		s := Summary{
			RunID:    em.runID,
			Counters: counters,
			Results:  results,
			Elapsed:  r.now().Sub(started),
		}
		if spec.window != nil {
			s.TotalInDB = spec.window.totalInDB
		}
		return s
	}

	fatal := func(err error, next *int) (Summary, error) {
		logger.Error("run aborted", "error", err, "next_offset", next)
		em.emit(context.WithoutCancel(ctx), model.Event{
			Type:       model.EventError,
			Fatal:      true,
			Cause:      err.Error(),
			NextOffset: next,
			Message:    fmt.Sprintf("%s aborted: %v", spec.label, err),
		})
		s := summarize()
		s.NextOffset = next
		return s, err
	}

	plan, err := spec.prepare(ctx)
	if err != nil {
		var next *int
		if spec.window != nil {
			next = &spec.window.offset
		}
		return fatal(err, next)
	}

	if len(plan.skipped) > 0 {
		em.skip(ctx, plan.skipped, fmt.Sprintf("%d products skipped: %s", len(plan.skipped), plan.skipReason))
	}

	pool := newBatchPool(r.cfg, r.limiter, r.now)
	if r.sleep != nil {
		pool.sleep = r.sleep
	}
	pool.onBatch = func(batch, size int) {
		em.emit(ctx, model.Event{
			Type:      model.EventBatchStart,
			Batch:     batch,
			BatchSize: size,
			Message:   fmt.Sprintf("batch %d: %d products", batch, size),
		})
	}

	res := pool.run(ctx, len(plan.items), func(ctx context.Context, i int) {
		item := plan.items[i]
		em.setStatus(item.product.ID, ItemInFlight)
		em.emit(ctx, model.Event{
			Type:        model.EventProgress,
			ProductID:   item.product.ID,
			ProductName: item.product.Name,
			Message:     fmt.Sprintf("processing %s", item.product.ID),
		})
		spec.handle(ctx, em, item)
	})
	if res.err != nil {
		return fatal(res.err, resumeOffset(spec.window, plan.items, res.completed))
	}

	summary := summarize()
	summary.Interrupted = res.interrupted
	summary.NextOffset = resumeOffset(spec.window, plan.items, res.completed)
	if res.interrupted {
		logger.Warn("run budget exhausted", "dispatched", res.dispatched, "next_offset", *summary.NextOffset)
	}

	complete := model.Event{
		Type:        model.EventComplete,
		NextOffset:  summary.NextOffset,
		Interrupted: summary.Interrupted,
		TotalInDB:   summary.TotalInDB,
		ElapsedMS:   summary.Elapsed.Milliseconds(),
		Message:     fmt.Sprintf("%s complete: %d succeeded, %d failed, %d skipped",
			spec.label, summary.Counters.Success, summary.Counters.Failed, summary.Counters.Skipped),
	}
	if spec.window != nil {
		complete.Offset = spec.window.offset
		complete.Limit = spec.window.limit
	}
	em.emit(ctx, complete)

	logger.Info("run complete",
		"success", summary.Counters.Success,
		"failed", summary.Counters.Failed,
		"skipped", summary.Counters.Skipped,
		"elapsed", summary.Elapsed)

	return summary, nil
}
