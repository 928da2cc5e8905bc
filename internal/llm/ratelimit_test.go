package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("burst up to capacity then waits", func(t *testing.T) {
		// 600 rpm refills one token every 100ms
		rl := NewRateLimiter(600)
		defer rl.Close()
		ctx := context.Background()

		for i := 0; i < 600; i++ {
			require.True(t, rl.TryAcquire())
		}
		assert.False(t, rl.TryAcquire())

		start := time.Now()
		require.NoError(t, rl.Wait(ctx))
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("context cancellation", func(t *testing.T) {
		rl := NewRateLimiter(1)
		defer rl.Close()

		require.NoError(t, rl.Wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() {
			done <- rl.Wait(ctx)
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		err := <-done
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Contains(t, err.Error(), "rate limiter canceled")
	})

	t.Run("closed limiter stops waiters", func(t *testing.T) {
		rl := NewRateLimiter(1)
		require.True(t, rl.TryAcquire())

		done := make(chan error)
		go func() {
			done <- rl.Wait(context.Background())
		}()
		time.Sleep(10 * time.Millisecond)
		rl.Close()
		rl.Close()

		select {
		case err := <-done:
			require.Error(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("waiter not released by Close")
		}
	})

	t.Run("default rate limit", func(t *testing.T) {
		rl := NewRateLimiter(0)
		defer rl.Close()
		assert.Equal(t, 60, rl.Available())
	})

	t.Run("concurrent access hands out each token once", func(t *testing.T) {
		rl := NewRateLimiter(100)
		defer rl.Close()

		var acquired atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					if rl.TryAcquire() {
						acquired.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		assert.LessOrEqual(t, acquired.Load(), int32(101))
		assert.GreaterOrEqual(t, acquired.Load(), int32(100))
	})
}
