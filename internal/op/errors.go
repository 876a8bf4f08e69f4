package op

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled is the sentinel matched by every cancellation cause.
var ErrCancelled = errors.New("operation cancelled")

// CancelledError is the cause attached to an operation's cancellation token.
type CancelledError struct {
	Reason string

	// ObsoletedBy is the id of the superseding operation, or 0 when the
	// cancellation did not come from obsolescence.
	ObsoletedBy OperationID
}

func (e *CancelledError) Error() string {
	if e.Reason == "" {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCancelled.Error(), e.Reason)
}

// Is makes errors.Is(err, ErrCancelled) true for every CancelledError.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// IsCancellation reports whether err returned by an execute function
// represents cooperative cancellation rather than a failure.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// ExecutionError wraps a failure returned by an operation's execute
// function. It is never retried.
type ExecutionError struct {
	OperationID OperationID
	Category    Category
	Description string
	Err         error
}

func (e *ExecutionError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("operation %d (%s, %q) failed: %v", e.OperationID, e.Category, e.Description, e.Err)
	}
	return fmt.Sprintf("operation %d (%s) failed: %v", e.OperationID, e.Category, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecutionError returns true if err wraps an *ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// CycleError reports a cycle among categories of a dependency table.
type CycleError struct {
	Categories []Category
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Categories))
	for i, c := range e.Categories {
		names[i] = string(c)
	}
	return "dependency cycle among categories: " + strings.Join(names, ", ")
}

// IsCycleError returns true if err wraps a *CycleError.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}
