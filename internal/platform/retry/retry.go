package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy is a bounded retry with exponential backoff.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

func Default() Policy {
	return Policy{MaxAttempts: 3, Backoff: 100 * time.Millisecond, MaxBackoff: 2 * time.Second}
}

// Do runs fn until it succeeds or MaxAttempts is exhausted. The returned
// error wraps the last failure.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, p.delay(attempt)); err != nil {
			return attempt, fmt.Errorf("retry interrupted after %d attempts: %w (last error: %v)", attempt, err, lastErr)
		}
	}
	return attempts, fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.Backoff << (attempt - 1)
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
