package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/tierkeeper/internal/common"
)

// QueueConfig configures a bounded classification queue.
type QueueConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	BatchDelay  time.Duration `mapstructure:"batch_delay"`
	ItemTimeout time.Duration `mapstructure:"item_timeout"`
	// RunBudget bounds wall-clock time; zero means unbounded.
	RunBudget time.Duration `mapstructure:"run_budget"`
	// MaxWindow caps the limit of a windowed rescan.
	MaxWindow int `mapstructure:"max_window"`
}

// DefaultArchiveQueueConfig returns the archive queue defaults.
func DefaultArchiveQueueConfig() QueueConfig {
	return QueueConfig{
		Concurrency: 3,
		BatchDelay:  time.Second,
		ItemTimeout: 60 * time.Second,
		MaxWindow:   100,
	}
}

// DefaultVisionQueueConfig returns the vision queue defaults.
func DefaultVisionQueueConfig() QueueConfig {
	return QueueConfig{
		Concurrency: 2,
		BatchDelay:  4 * time.Second,
		ItemTimeout: 90 * time.Second,
		MaxWindow:   100,
	}
}

// Validate rejects unusable settings.
func (c QueueConfig) Validate() error {
	switch {
	case c.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive, got %d", common.ErrInvalidConfig, c.Concurrency)
	case c.BatchDelay < 0:
		return fmt.Errorf("%w: negative batch delay", common.ErrInvalidConfig)
	case c.ItemTimeout <= 0:
		return fmt.Errorf("%w: item timeout must be positive", common.ErrInvalidConfig)
	case c.RunBudget < 0:
		return fmt.Errorf("%w: negative run budget", common.ErrInvalidConfig)
	case c.MaxWindow <= 0:
		return fmt.Errorf("%w: max window must be positive", common.ErrInvalidConfig)
	}
	return nil
}

func (c QueueConfig) withConcurrency(override int) (QueueConfig, error) {
	if override < 0 {
		return c, fmt.Errorf("%w: concurrency override must not be negative", common.ErrInvalidConfig)
	}
	if override > 0 {
		c.Concurrency = override
	}
	return c, c.Validate()
}

// poolResult reports how far a pool run got. Completed counts the items of
// batches that finished before the run stopped, under a live context; a
// resumed run starts there.
type poolResult struct {
	err         error
	dispatched  int
	completed   int
	interrupted bool
}

// batchPool runs work over n items with a fixed set of workers. Items are
// dispatched in input order in batches of at most concurrency; the next batch
// starts only after the whole batch finishes and the batch delay elapses, so
// no more than concurrency calls are ever in flight. The run budget is checked
// between batches, never inside a call.
type batchPool struct {
	limiter  Limiter
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	onBatch  func(batch, size int)
	cfg      QueueConfig
	started  time.Time
	inFlight int
	peak     int
	mu       sync.Mutex
}

func newBatchPool(cfg QueueConfig, limiter Limiter, now func() time.Time) *batchPool {
	return &batchPool{
		cfg:     cfg,
		limiter: limiter,
		now:     now,
		sleep:   sleepContext,
	}
}

func (p *batchPool) run(ctx context.Context, n int, work func(ctx context.Context, i int)) poolResult {
	p.started = p.now()
	if n == 0 {
		return poolResult{}
	}

	jobs := make(chan int)
	var batchWG, workersWG sync.WaitGroup

	for w := 0; w < min(p.cfg.Concurrency, n); w++ {
		workersWG.Add(1)
		go func() {
			defer workersWG.Done()
			for i := range jobs {
				p.enter()
				work(ctx, i)
				p.leave()
				batchWG.Done()
			}
		}()
	}

	var res poolResult
	batch := 0
	for start := 0; start < n; start += p.cfg.Concurrency {
		res.completed = start
		if start > 0 {
			if p.cfg.RunBudget > 0 && p.now().Sub(p.started) >= p.cfg.RunBudget {
				res.interrupted = true
				break
			}
			if err := p.sleep(ctx, p.cfg.BatchDelay); err != nil {
				res.err = fmt.Errorf("%w: %w", common.ErrRunAborted, err)
				break
			}
		}

		end := min(start+p.cfg.Concurrency, n)
		batch++
		if p.onBatch != nil {
			p.onBatch(batch, end-start)
		}

		for i := start; i < end; i++ {
			if err := p.acquire(ctx); err != nil {
				res.err = err
				break
			}
			batchWG.Add(1)
			jobs <- i
			res.dispatched++
		}
		batchWG.Wait()
		if res.err == nil && ctx.Err() != nil {
			res.err = fmt.Errorf("%w: %w", common.ErrRunAborted, ctx.Err())
		}
		if res.err != nil {
			break
		}
	}
	if res.err == nil && !res.interrupted {
		res.completed = n
	}

	close(jobs)
	workersWG.Wait()
	return res
}

func (p *batchPool) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrRunAborted, err)
	}
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to obtain rate limit token: %w", err)
	}
	return nil
}

func (p *batchPool) enter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight++
	p.peak = max(p.peak, p.inFlight)
}

func (p *batchPool) leave() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight--
}

func (p *batchPool) peakInFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// callWithTimeout bounds fn by timeout. A call that ignores its context is
// abandoned when the timeout fires; its result is discarded.
func callWithTimeout[R any](ctx context.Context, timeout time.Duration, fn func(context.Context) (R, error)) (R, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		err error
		val R
	}
	ch := make(chan outcome, 1)
	go func() {
		val, err := fn(ctx)
		ch <- outcome{val: val, err: err}
	}()

	select {
	case o := <-ch:
		return o.val, o.err
	case <-ctx.Done():
		var zero R
		return zero, fmt.Errorf("timed out after %s: %w", timeout, ctx.Err())
	}
}
