package ports

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestLLMError tests the functionality of the LLMError error type.
// It covers error creation, message formatting, and retryable logic.
func TestLLMError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := NewLLMError("gpt-4o", "Evolve", ErrTokenLimitExceeded)

		assert.Equal(t, "LLM error: model=gpt-4o, operation=Evolve, err=token limit exceeded", err.Error())
		assert.Equal(t, "gpt-4o", err.Model)
		assert.Equal(t, "Evolve", err.Operation)
		assert.True(t, errors.Is(err, ErrTokenLimitExceeded))
	})

	t.Run("with tokens used and retry after", func(t *testing.T) {
		retryAfter := 30 * time.Second
		err := &LLMError{
			Model:      "claude-3.5-sonnet",
			Operation:  "Judge",
			Err:        ErrRateLimited,
			TokensUsed: 512,
			RetryAfter: &retryAfter,
		}

		assert.Contains(t, err.Error(), "tokens_used=512")
		assert.Contains(t, err.Error(), "retry_after=30s")
	})

	t.Run("retryable errors", func(t *testing.T) {
		for _, baseErr := range []error{ErrRateLimited, ErrServiceUnavailable, ErrTimeout} {
			err := NewLLMError("test-model", "Test", baseErr)
			assert.True(t, err.IsRetryable(), "%v should be retryable", baseErr)
		}

		for _, baseErr := range []error{ErrTokenLimitExceeded, ErrInvalidResponse, ErrAuthenticationFailed, ErrConflict} {
			err := NewLLMError("test-model", "Test", baseErr)
			assert.False(t, err.IsRetryable(), "%v should not be retryable", baseErr)
		}
	})
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(fmt.Errorf("insert: %w", ErrServiceUnavailable)), "wrapped sentinels are transient")
	assert.True(t, IsTransient(NewStoreError("sessions", "update", ErrTimeout)))
	assert.False(t, IsTransient(NewStoreError("evolution_records", "insert", ErrConflict)))
	assert.False(t, IsTransient(errors.New("boom")))
}

// TestStoreError verifies message formatting and context fields.
func TestStoreError(t *testing.T) {
	tests := []struct {
		name      string
		entity    string
		operation string
		err       error
		wantMsg   string
	}{
		{
			name:      "unique violation",
			entity:    "evolution_records",
			operation: "InsertEvolution",
			err:       ErrConflict,
			wantMsg:   "store error: operation=InsertEvolution, entity=evolution_records, err=conflict",
		},
		{
			name:      "busy database",
			entity:    "interview_sessions",
			operation: "UpdateSession",
			err:       ErrServiceUnavailable,
			wantMsg:   "store error: operation=UpdateSession, entity=interview_sessions, err=service unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStoreError(tt.entity, tt.operation, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.entity, err.Entity)
			assert.Equal(t, tt.operation, err.Operation)
			assert.True(t, errors.Is(err, tt.err))
		})
	}
}

// TestConfigError verifies that the error message contains the relevant
// configuration key.
func TestConfigError(t *testing.T) {
	err := NewConfigError("database.dsn", ErrConfigNotFound)

	assert.Equal(t, "config error: key=database.dsn, err=configuration not found", err.Error())
	assert.Equal(t, "database.dsn", err.ConfigKey)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

// TestCommonInfrastructureErrors checks that each error has the expected
// message.
func TestCommonInfrastructureErrors(t *testing.T) {
	tests := []struct {
		err     error
		message string
	}{
		{ErrTokenLimitExceeded, "token limit exceeded"},
		{ErrRateLimited, "rate limited"},
		{ErrServiceUnavailable, "service unavailable"},
		{ErrTimeout, "operation timed out"},
		{ErrInvalidResponse, "invalid response"},
		{ErrAuthenticationFailed, "authentication failed"},
		{ErrConflict, "conflict"},
		{ErrConfigNotFound, "configuration not found"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
		})
	}
}

// TestErrorUnwrapping tests that all custom error types in the package
// support unwrapping.
func TestErrorUnwrapping(t *testing.T) {
	baseErr := errors.New("underlying error")

	errorList := []interface {
		error
		Unwrap() error
	}{
		NewLLMError("model", "op", baseErr),
		NewStoreError("entity", "op", baseErr),
		NewConfigError("key", baseErr),
	}

	for _, err := range errorList {
		unwrapped := err.Unwrap()
		assert.Equal(t, baseErr, unwrapped, "%T should unwrap to base error", err)
		assert.True(t, errors.Is(err, baseErr), "%T should match base error with Is", err)
	}
}
