package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrRateLimit is returned by providers that throttle requests.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries wraps the last error once every attempt has failed.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryOptions configures WithRetry. Zero values take defaults.
type RetryOptions struct {
	Logger       *slog.Logger
	Op           string
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 100 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Multiplier <= 0 {
		o.Multiplier = 2
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Op == "" {
		o.Op = "operation"
	}
	return o
}

// backoff is the wait after the given failed attempt (1-based).
func (o RetryOptions) backoff(attempt int, err error) time.Duration {
	if errors.Is(err, ErrRateLimit) {
		return o.MaxDelay
	}
	d := float64(o.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= o.Multiplier
		if d >= float64(o.MaxDelay) {
			return o.MaxDelay
		}
	}
	return time.Duration(d)
}

// RetryableError marks whether an error is worth another attempt.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// WithRetry runs op until it succeeds, returns a non-retryable
// RetryableError, or runs out of attempts. Rate limits wait the full MaxDelay.
func WithRetry(ctx context.Context, op func(ctx context.Context) error, opts RetryOptions) error {
	opts = opts.withDefaults()

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		var re *RetryableError
		if errors.As(err, &re) && !re.Retryable {
			return err
		}
		if attempt >= opts.MaxAttempts {
			return fmt.Errorf("%s: %w after %d attempts: %w", opts.Op, ErrMaxRetries, attempt, err)
		}

		delay := opts.backoff(attempt, err)
		opts.Logger.Debug("Retrying",
			"op", opts.Op,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
