package domain

import (
	"errors"
	"fmt"
)

// Common domain errors returned by scoring and interview operations.
var (
	// ErrNotFound indicates that a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyDecided indicates that a verdict already carries a different
	// final decision.
	ErrAlreadyDecided = errors.New("verdict already decided")

	// ErrInvalidTransition indicates an illegal interview status change.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrInvalidDecision indicates a decision other than hire, reject or retest.
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrNoVerdict indicates that a session has no verdict to decide on.
	ErrNoVerdict = errors.New("session has no verdict")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// DecisionError wraps a failure of one step while applying an interview
// decision, identifying the session and the step that failed.
type DecisionError struct {
	// SessionID is the interview session being decided.
	SessionID string

	// Step names the mutation that failed, e.g. "close_assignments".
	Step string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for DecisionError.
func (e *DecisionError) Error() string {
	return fmt.Sprintf("decision error: session=%s, step=%s, err=%v", e.SessionID, e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecisionError) Unwrap() error { return e.Err }

// NewDecisionError creates a new DecisionError with the given details.
func NewDecisionError(sessionID, step string, err error) *DecisionError {
	return &DecisionError{
		SessionID: sessionID,
		Step:      step,
		Err:       err,
	}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
