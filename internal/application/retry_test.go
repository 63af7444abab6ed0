package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-hydra/internal/ports"
)

func TestRetrier_Do(t *testing.T) {
	transient := ports.NewStoreError("sessions", "UpdateSession", ports.ErrServiceUnavailable)
	permanent := errors.New("constraint failed")

	tests := []struct {
		name      string
		attempts  int
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{name: "succeeds first time", attempts: 3, wantCalls: 1},
		{name: "recovers from transient failure", attempts: 3, failures: 2, err: transient, wantCalls: 3},
		{name: "gives up after max attempts", attempts: 2, failures: 5, err: transient, wantCalls: 2, wantErr: ports.ErrServiceUnavailable},
		{name: "permanent errors are not retried", attempts: 3, failures: 5, err: permanent, wantCalls: 1, wantErr: permanent},
		{name: "single attempt", attempts: 1, failures: 1, err: transient, wantCalls: 1, wantErr: ports.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRetrier(RetryConfig{MaxAttempts: tt.attempts, InitialWait: 1, MaxWait: 2})

			calls := 0
			err := r.do(context.Background(), transientOnly, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRetrier_ExhaustedErrorNamesAttempts(t *testing.T) {
	r := newRetrier(RetryConfig{MaxAttempts: 3, InitialWait: 1, MaxWait: 1})

	err := r.do(context.Background(), transientOnly, func(context.Context) error {
		return ports.ErrTimeout
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.ErrorIs(t, err, ports.ErrTimeout)
}

func TestRetrier_StopsOnCanceledContext(t *testing.T) {
	r := newRetrier(RetryConfig{MaxAttempts: 5, InitialWait: 1000, MaxWait: 1000})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- r.do(ctx, transientOnly, func(context.Context) error {
			calls++
			return ports.ErrRateLimited
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls, "no attempt after cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("retrier did not stop after cancellation")
	}
}

func TestRetrier_Delay(t *testing.T) {
	r := newRetrier(RetryConfig{MaxAttempts: 5, InitialWait: 100, MaxWait: 300})

	for attempt := 0; attempt < 5; attempt++ {
		d := r.delay(attempt)
		base := 100 * time.Millisecond << attempt
		lower := base - base/4
		upper := base + base/4

		assert.LessOrEqual(t, d, 300*time.Millisecond, "attempt %d exceeds cap", attempt)
		if upper <= 300*time.Millisecond {
			assert.GreaterOrEqual(t, d, lower, "attempt %d below jitter range", attempt)
			assert.LessOrEqual(t, d, upper, "attempt %d above jitter range", attempt)
		}
	}

	assert.Equal(t, 1, newRetrier(RetryConfig{}).maxAttempts, "attempts never drop below one")
}
