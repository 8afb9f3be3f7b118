package engine

import (
	"errors"
	"fmt"
)

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeMissingComponent indicates a task names a component that is
	// not registered.
	ErrCodeMissingComponent RuntimeErrorCode = "MISSING_COMPONENT"

	// ErrCodeUnboundParameter indicates an artifact parameter had nothing
	// to bind to at execution time.
	ErrCodeUnboundParameter RuntimeErrorCode = "UNBOUND_PARAMETER"

	// ErrCodeComponentFailed indicates the component function returned an
	// error or panicked.
	ErrCodeComponentFailed RuntimeErrorCode = "COMPONENT_FAILED"

	// ErrCodeInvalidBinding indicates task arguments do not fit the
	// component's parameters, or a return value has the wrong type.
	ErrCodeInvalidBinding RuntimeErrorCode = "INVALID_BINDING"

	// ErrCodeCycleDetected indicates the pipeline graph is not a DAG.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodeInvalidPipeline indicates any other structural problem found
	// before execution.
	ErrCodeInvalidPipeline RuntimeErrorCode = "INVALID_PIPELINE"

	// ErrCodeQuotaExceeded indicates the run hit its task limit.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"
)

// RuntimeError is an error detected while planning or executing a run.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run, if one was started.
	RunID string

	// TaskID identifies the affected task, if any.
	TaskID string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RunID != "" && e.TaskID != "" {
		return fmt.Sprintf("%s: %s (run=%s, task=%s)", e.Code, e.Message, e.RunID, e.TaskID)
	}
	if e.TaskID != "" {
		return fmt.Sprintf("%s: %s (task=%s)", e.Code, e.Message, e.TaskID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is a RuntimeError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsCycleError reports whether err is a cycle detection error.
func IsCycleError(err error) bool {
	return HasCode(err, ErrCodeCycleDetected)
}

// IsQuotaError reports whether err is a quota error, either as a
// RuntimeError or a TasksExceededError.
func IsQuotaError(err error) bool {
	if HasCode(err, ErrCodeQuotaExceeded) {
		return true
	}
	var te *TasksExceededError
	return errors.As(err, &te)
}
