// Package poll waits on asynchronous external jobs with a fixed interval and
// a hard deadline.
package poll

import (
	"context"
	"fmt"
	"time"

	"vigil/internal/services"
)

// DefaultInterval is the poll cadence used when none is configured.
const DefaultInterval = 5 * time.Second

// TimeoutError reports that a condition never held before the deadline.
type TimeoutError struct {
	Operation string
	Waited    time.Duration
	Attempts  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: not finished after %s (%d polls)", e.Operation, e.Waited.Round(time.Millisecond), e.Attempts)
}

// Is lets errors.Is(err, services.ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == services.ErrTimeout
}

// Condition is checked once per interval. Returning done=true or a non-nil
// error ends polling.
type Condition func(ctx context.Context) (done bool, err error)

// Until evaluates cond immediately and then every interval until it reports
// done, returns an error, ctx ends, or maxWait elapses. A non-positive
// maxWait means no ceiling beyond ctx.
func Until(ctx context.Context, operation string, interval, maxWait time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	start := time.Now()
	var deadline <-chan time.Time
	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return &TimeoutError{Operation: operation, Waited: time.Since(start), Attempts: attempts}
		case <-ticker.C:
		}
	}
}
