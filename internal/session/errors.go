package session

import "errors"

var (
	// ErrScanInProgress is returned by Start while a crawl is active.
	ErrScanInProgress = errors.New("a crawl is already in progress")

	// ErrModeViolation is returned when the operating mode forbids the crawl.
	ErrModeViolation = errors.New("crawl not allowed in the current mode")

	// ErrAllWorkersFailed is the result of a crawl in which no browser started.
	ErrAllWorkersFailed = errors.New("no browser worker could be started")

	// ErrNilTarget is returned by Start without a target.
	ErrNilTarget = errors.New("crawl target is required")

	// ErrNoLauncher is returned when the session has no browser launcher.
	ErrNoLauncher = errors.New("browser launcher is required")
)
