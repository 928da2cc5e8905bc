package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/tierkeeper/internal/model"
)

// ItemStatus is the state of one item within a run.
type ItemStatus string

// Item states.
const (
	ItemPending   ItemStatus = "pending"
	ItemInFlight  ItemStatus = "in-flight"
	ItemCompleted ItemStatus = "completed"
	ItemFailed    ItemStatus = "failed"
	ItemSkipped   ItemStatus = "skipped"
)

// ItemResult is the final outcome of one item.
type ItemResult struct {
	ProductID  string     `json:"product_id"`
	Status     ItemStatus `json:"status"`
	Category   model.Tier `json:"category,omitempty"`
	Cause      string     `json:"cause,omitempty"`
	Confidence int        `json:"confidence,omitempty"`
	Fallback   bool       `json:"fallback,omitempty"`
}

// Summary is the final report of a run.
type Summary struct {
	NextOffset  *int           `json:"next_offset,omitempty"`
	RunID       string         `json:"run_id"`
	Results     []ItemResult   `json:"results"`
	Counters    model.Counters `json:"counters"`
	Elapsed     time.Duration  `json:"elapsed"`
	TotalInDB   int            `json:"total_in_db,omitempty"`
	Interrupted bool           `json:"interrupted,omitempty"`
}

// emitter numbers events and keeps the run's counters. Counter updates and
// the event reporting them happen under one lock, so every event carries a
// consistent snapshot. sendMu is held from stamping through delivery, so
// events arrive in Seq order; mu is always taken after it.
type emitter struct {
	out      chan<- model.Event
	now      func() time.Time
	runID    string
	results  []ItemResult
	index    map[string]int
	counters model.Counters
	seq      int64
	sendMu   sync.Mutex
	mu       sync.Mutex
}

func newEmitter(runID string, out chan<- model.Event, now func() time.Time) *emitter {
	return &emitter{
		out:   out,
		now:   now,
		runID: runID,
		index: make(map[string]int),
	}
}

// track registers the run's items in input order.
func (e *emitter) track(ids []string, status ItemStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		if _, ok := e.index[id]; ok {
			continue
		}
		e.index[id] = len(e.results)
		e.results = append(e.results, ItemResult{ProductID: id, Status: status})
	}
}

func (e *emitter) setStatus(id string, status ItemStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i, ok := e.index[id]; ok {
		e.results[i].Status = status
	}
}

// emit stamps ev and delivers it. Delivery gives up when ctx is done.
func (e *emitter) emit(ctx context.Context, ev model.Event) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	e.mu.Lock()
	e.stamp(&ev)
	e.mu.Unlock()
	e.send(ctx, ev)
}

// finish records an item outcome, updates the counters and emits ev.
func (e *emitter) finish(ctx context.Context, res ItemResult, ev model.Event) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	e.mu.Lock()
	switch res.Status {
	case ItemCompleted:
		e.counters.Success++
	case ItemFailed:
		e.counters.Failed++
	case ItemSkipped:
		e.counters.Skipped++
	}
	if res.Status != ItemSkipped {
		e.counters.Processed++
	}
	if i, ok := e.index[res.ProductID]; ok {
		e.results[i] = res
	}
	e.stamp(&ev)
	e.mu.Unlock()
	e.send(ctx, ev)
}

// skip records items excluded before dispatch and reports them in one event.
func (e *emitter) skip(ctx context.Context, items []model.SkippedItem, message string) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	e.mu.Lock()
	for _, item := range items {
		e.counters.Skipped++
		if i, ok := e.index[item.ProductID]; ok {
			e.results[i] = ItemResult{ProductID: item.ProductID, Status: ItemSkipped, Category: item.Category}
		}
	}
	ev := model.Event{
		Type:    model.EventSkipped,
		Skipped: items,
		Message: message,
	}
	e.stamp(&ev)
	e.mu.Unlock()
	e.send(ctx, ev)
}

func (e *emitter) setTotal(total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters.Total = total
}

func (e *emitter) stamp(ev *model.Event) {
	e.seq++
	ev.Seq = e.seq
	ev.RunID = e.runID
	ev.Time = e.now()
	ev.Counters = e.counters
}

func (e *emitter) send(ctx context.Context, ev model.Event) {
	select {
	case e.out <- ev:
	case <-ctx.Done():
	}
}

func (e *emitter) snapshot() (model.Counters, []ItemResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters, append([]ItemResult(nil), e.results...)
}

// Job is a running queue invocation.
type Job struct {
	events  chan model.Event
	done    chan struct{}
	err     error
	summary Summary
	RunID   string
}

func newJob(runID string, buffer int) *Job {
	return &Job{
		RunID:  runID,
		events: make(chan model.Event, buffer),
		done:   make(chan struct{}),
	}
}

// Events returns the progress stream. It is closed when the run ends.
func (j *Job) Events() <-chan model.Event {
	return j.events
}

// Wait blocks until the run ends, discarding events nobody has read.
func (j *Job) Wait() (Summary, error) {
	for range j.events {
	}
	<-j.done
	return j.summary, j.err
}

// Done is closed when the run ends.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
