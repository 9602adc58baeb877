package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when no start URL is specified.
	ErrNoTarget = errors.New("no target specified: provide a start URL")

	// ErrInvalidTimeout is returned when the Tor startup timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingUpstream is returned when both --tor and --proxy are specified.
	ErrConflictingUpstream = errors.New("conflicting upstream: --tor and --proxy cannot be used together")

	// ErrOnionNeedsTor is returned when an onion service is crawled without
	// --tor or --proxy.
	ErrOnionNeedsTor = errors.New("onion services can only be crawled with --tor or --proxy")

	// ErrInvalidOnionAddress is returned when the start URL names a malformed
	// onion service.
	ErrInvalidOnionAddress = errors.New("invalid v3 onion address")

	// ErrInvalidThreshold is returned when a found-resource threshold is negative.
	ErrInvalidThreshold = errors.New("invalid threshold: must be non-negative")

	// ErrInvalidRate is returned when the request rate is negative.
	ErrInvalidRate = errors.New("invalid request rate: must be non-negative")

	// ErrNoScope is returned when --in-scope-only is used without a scope section.
	ErrNoScope = errors.New("in-scope-only requires a scope section in the configuration file")

	// ErrNoDBDir is returned when results must be saved but no directory is set.
	ErrNoDBDir = errors.New("database directory is required to save results")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrUnknownContext is returned when a named context is not defined.
	ErrUnknownContext = errors.New("unknown context")

	// ErrUnknownUser is returned when a named user is not defined.
	ErrUnknownUser = errors.New("unknown user")
)
