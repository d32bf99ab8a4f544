package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vigil/internal/services"
)

const (
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 3
)

// Backoff retries transient reasoning failures with exponential delays.
// A zero MaxAttempts means three attempts; a zero BaseDelay retries without
// waiting.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Sleeper replaces the real sleep; tests pass a no-op.
	Sleeper func(time.Duration)
}

// Outcome records how a retried call went.
type Outcome struct {
	Attempts int
	LastErr  error
}

// retryAfterer is implemented by errors that carry a server-requested delay.
type retryAfterer interface {
	RetryAfter() time.Duration
}

// Do calls fn until it succeeds, returns a non-transient error, ctx ends,
// or the attempt budget is spent.
func (b Backoff) Do(ctx context.Context, op string, fn func(context.Context) error) (Outcome, error) {
	attempts := b.attempts()
	var out Outcome
	for attempt := 1; attempt <= attempts; attempt++ {
		out.Attempts = attempt
		err := fn(ctx)
		if err == nil {
			out.LastErr = nil
			return out, nil
		}
		out.LastErr = err

		delay, retry := b.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			if attempt > 1 {
				return out, fmt.Errorf("%s: failed after %d attempts: %w", op, attempt, err)
			}
			return out, err
		}
		if sleepErr := b.sleep(ctx, delay); sleepErr != nil {
			return out, sleepErr
		}
	}
	if out.LastErr == nil {
		out.LastErr = errors.New("unknown retry failure")
	}
	return out, fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, out.LastErr)
}

func (b Backoff) attempts() int {
	if b.MaxAttempts <= 0 {
		return defaultRetryAttempts
	}
	return b.MaxAttempts
}

func (b Backoff) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts {
		return 0, false
	}
	if err == nil || ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	if !services.IsTransient(err) {
		return 0, false
	}
	var ra retryAfterer
	if errors.As(err, &ra) && ra.RetryAfter() > 0 {
		return b.capDelay(ra.RetryAfter()), true
	}
	return b.backoffDelay(attempt), true
}

func (b Backoff) backoffDelay(attempt int) time.Duration {
	base := b.BaseDelay
	if base < 0 {
		base = defaultRetryBaseDelay
	}
	maxDelay := b.maxDelay()
	if base <= 0 {
		return 0
	}

	retryCount := attempt // attempt is 1-based, delay is for the next attempt.
	if retryCount <= 0 {
		retryCount = 1
	}

	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < retryCount; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return b.capDelay(delay)
}

func (b Backoff) maxDelay() time.Duration {
	if b.MaxDelay > 0 {
		return b.MaxDelay
	}
	return defaultRetryMaxDelay
}

func (b Backoff) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if maxDelay := b.maxDelay(); delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (b Backoff) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if b.Sleeper != nil {
		b.Sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
