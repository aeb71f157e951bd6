package ioreactor

import (
	"errors"
	"fmt"
)

// Sentinel errors returned synchronously by Reactor methods. These are
// programmer errors (misuse of the API), distinct from the Error/StatusCode
// domain value handed to callbacks (see status.go).
var (
	ErrReactorAlreadyRunning = errors.New("ioreactor: reactor already running")
	ErrReactorTerminated     = errors.New("ioreactor: reactor terminated")
	ErrReactorNotRunning     = errors.New("ioreactor: reactor not running")
	ErrReentrantRun          = errors.New("ioreactor: Run called reentrantly from the loop thread")
	ErrWorkCanceled          = errors.New("ioreactor: work canceled")
)

// ErrGoexit is reported to a work item's completion callback when the
// offloaded function called runtime.Goexit instead of returning normally.
var ErrGoexit = errors.New("ioreactor: worker function called runtime.Goexit")

// PanicError wraps a value recovered from a panic inside a worker-pool
// function.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("ioreactor: panic: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error,
// enabling errors.Is/errors.As through the cause chain.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// WrapError wraps an error with a message, preserving it for errors.Is/As.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
