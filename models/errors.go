package models

import (
	"errors"
	"fmt"
)

// Common errors for capability invocations.
var (
	// ErrModelUnavailable is returned when no implementation is bound for a
	// capability, or the bound implementation failed to load.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrInferenceTimeout is returned when an invocation exceeds its
	// configured deadline. Callers treat it as that stage's failure.
	ErrInferenceTimeout = errors.New("inference timed out")

	// ErrEmptyInput is returned when an invocation receives no data.
	ErrEmptyInput = errors.New("input data is empty")
)

// InferenceError reports a failed capability invocation.
type InferenceError struct {
	// Capability is the capability that was invoked.
	Capability Capability

	// Model is the implementation name.
	Model string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether the invocation can be retried.
	Retryable bool
}

// NewInferenceError creates a new InferenceError.
func NewInferenceError(capability Capability, model string, cause error, retryable bool) *InferenceError {
	return &InferenceError{
		Capability: capability,
		Model:      model,
		Cause:      cause,
		Retryable:  retryable,
	}
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s inference error (%s): %v", e.Capability, e.Model, e.Cause)
	}
	return fmt.Sprintf("%s inference error (%s)", e.Capability, e.Model)
}

// Unwrap returns the underlying error.
func (e *InferenceError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is.
func (e *InferenceError) Is(target error) bool {
	if e.Cause != nil && errors.Is(e.Cause, target) {
		return true
	}
	t, ok := target.(*InferenceError)
	if !ok {
		return false
	}
	return e.Capability == t.Capability && e.Model == t.Model
}
