package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrBootstrapTimeout is returned when the browser does not become ready
	// within the bootstrap window.
	ErrBootstrapTimeout = errors.New("browser did not become ready within the bootstrap timeout")

	// ErrWorkerStarted is returned when Start is called more than once.
	ErrWorkerStarted = errors.New("worker already started")

	// ErrWorkerClosed is returned when the worker was shut down before or
	// during Start.
	ErrWorkerClosed = errors.New("worker is shut down")
)

// BrowserStartupError reports a worker that could not produce a ready browser.
type BrowserStartupError struct {
	WorkerID int
	Err      error
}

func (e *BrowserStartupError) Error() string {
	return fmt.Sprintf("worker %d: browser startup failed: %v", e.WorkerID, e.Err)
}

func (e *BrowserStartupError) Unwrap() error { return e.Err }
