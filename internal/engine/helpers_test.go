package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/tierkeeper/internal/classification"
	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/service"
	"github.com/Veraticus/tierkeeper/internal/testutil"
	"github.com/Veraticus/tierkeeper/internal/testutil/catalog"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store unavailable")

// fakeClock advances only when told to; sleeping on it advances it.
type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: catalog.BaseTime.Add(24 * time.Hour)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

type classifierFunc func(ctx context.Context, p model.Product) (model.ArchiveResult, error)

func (f classifierFunc) Classify(ctx context.Context, p model.Product) (model.ArchiveResult, error) {
	return f(ctx, p)
}

type analyzerFunc func(ctx context.Context, p model.Product) (model.VisionAnalysis, error)

func (f analyzerFunc) Analyze(ctx context.Context, p model.Product) (model.VisionAnalysis, error) {
	return f(ctx, p)
}

// blockUntilDone ignores the product and waits for the call to be cancelled.
func blockUntilDone(ctx context.Context, _ model.Product) (model.ArchiveResult, error) {
	<-ctx.Done()
	return model.ArchiveResult{}, ctx.Err()
}

// flakyStore fails selected operations of an otherwise real store.
type flakyStore struct {
	ArchiveStore
	failGetAssignments bool
	failUpsert         map[string]bool
}

func (s *flakyStore) GetAssignments(ctx context.Context, ids []string) (map[string]model.TierAssignment, error) {
	if s.failGetAssignments {
		return nil, errStoreDown
	}
	return s.ArchiveStore.GetAssignments(ctx, ids)
}

func (s *flakyStore) UpsertAssignment(ctx context.Context, a model.TierAssignment) error {
	if s.failUpsert[a.ProductID] {
		return errStoreDown
	}
	return s.ArchiveStore.UpsertAssignment(ctx, a)
}

// countingLimiter fails once more than allow tokens were taken.
type countingLimiter struct {
	taken int
	allow int
	mu    sync.Mutex
}

func (l *countingLimiter) Wait(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allow > 0 && l.taken >= l.allow {
		return common.ErrRateLimit
	}
	l.taken++
	return nil
}

func (l *countingLimiter) Taken() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.taken
}

func testQueueConfig() QueueConfig {
	return QueueConfig{
		Concurrency: 3,
		BatchDelay:  time.Second,
		ItemTimeout: 5 * time.Second,
		MaxWindow:   10,
	}
}

func newTestArchiveQueue(t *testing.T, store ArchiveStore, classifier ArchiveClassifier, cfg QueueConfig) (*ArchiveQueue, *fakeClock) {
	t.Helper()
	q, err := NewArchiveQueue(store, classifier, &countingLimiter{}, cfg, common.DiscardLogger())
	require.NoError(t, err)
	clock := newFakeClock()
	q.now = clock.Now
	q.sleep = clock.Sleep
	return q, clock
}

func backlogDB(t *testing.T) *testutil.TestDB {
	t.Helper()
	return testutil.SetupTestDBWithBuilder(t, func(b catalog.Builder) catalog.Builder {
		return b.WithFixture(catalog.FixtureArchiveBacklog)
	})
}

func mustProducts(t *testing.T, store service.ProductStore, ids ...string) []model.Product {
	t.Helper()
	products, err := store.GetProductsByIDs(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, products, len(ids))
	return products
}

// drain collects every event of job, then its outcome.
func drain(t *testing.T, job *Job) ([]model.Event, Summary, error) {
	t.Helper()
	var events []model.Event
	for ev := range job.Events() {
		events = append(events, ev)
	}
	summary, err := job.Wait()
	return events, summary, err
}

func eventsOfType(events []model.Event, typ model.EventType) []model.Event {
	var out []model.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func defaultTables() *classification.Tables {
	return classification.DefaultTables()
}

func sortedCopy(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
