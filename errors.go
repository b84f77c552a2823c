package treerunner

import (
	"errors"
	"fmt"
)

// RuntimeError is an operational error that leads to exit code 2: unreadable
// plans, invalid configuration or a violated execution contract.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError wraps err as a RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError reports a run in which at least one node failed (exit code 1)
type TestFailureError struct {
	RunID  string
	Failed int
	Total  int
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: run %s failed, %d of %d test case(s) failed", e.RunID, e.Failed, e.Total)
}

// NewTestFailureError creates a TestFailureError for the given run
func NewTestFailureError(runID string, failed, total int) *TestFailureError {
	return &TestFailureError{RunID: runID, Failed: failed, Total: total}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
