package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-hydra/internal/ports"
)

type retryLLM struct {
	next       CoreLLM
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware retries transient failures up to maxRetries times with
// jittered exponential backoff capped at maxDelay. Rate limits, server
// errors and timeouts are retried. Bad requests, authentication failures,
// an open circuit and cancellation are returned at once.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{
			next:       next,
			maxRetries: max(maxRetries, 0),
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// DoRequest implements CoreLLM.
func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		attempts++
		response, tokensIn, tokensOut, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return response, tokensIn, tokensOut, nil
		}
		lastErr = err

		if !shouldRetry(err) || ctx.Err() != nil || attempt == r.maxRetries {
			break
		}

		timer := time.NewTimer(r.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", 0, 0, errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}

	if attempts == 1 {
		return "", 0, 0, lastErr
	}
	return "", 0, 0, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

func shouldRetry(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return ports.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

// delay returns baseDelay*2^attempt with ±25% jitter, capped at maxDelay.
func (r *retryLLM) delay(attempt int) time.Duration {
	attempt = clamp(attempt, 0, 30)
	d := r.baseDelay << attempt
	if d <= 0 || (r.maxDelay > 0 && d > r.maxDelay) {
		d = r.maxDelay
	}
	jitter := time.Duration(rand.Float64() * float64(d) / 2)
	d = d - d/4 + jitter
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

func (r *retryLLM) GetModel() string  { return r.next.GetModel() }
func (r *retryLLM) SetModel(m string) { r.next.SetModel(m) }
