package application

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ahrav/go-hydra/internal/ports"
)

// retrier re-runs store work that failed with a transient error, using
// exponential backoff with jitter.
type retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

func newRetrier(cfg RetryConfig) retrier {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return retrier{
		maxAttempts: attempts,
		baseDelay:   time.Duration(cfg.InitialWait) * time.Millisecond,
		maxDelay:    time.Duration(cfg.MaxWait) * time.Millisecond,
	}
}

// do calls fn until it succeeds, fails permanently, or attempts run out.
// Errors for which retryable returns false are returned immediately.
func (r retrier) do(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil || attempt == r.maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delay(attempt)):
		}
	}

	if r.maxAttempts > 1 && retryable(lastErr) {
		return fmt.Errorf("failed after %d attempts: %w", r.maxAttempts, lastErr)
	}
	return lastErr
}

func (r retrier) delay(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	delay := time.Duration(float64(r.baseDelay) * float64(uint64(1)<<uint(attempt)))

	// Add jitter (±25%)
	// #nosec G404 - Using weak RNG is acceptable for jitter calculation
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - (delay / 4)

	if r.maxDelay > 0 && delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}

// transientOnly retries ports.IsTransient errors.
func transientOnly(err error) bool { return ports.IsTransient(err) }
