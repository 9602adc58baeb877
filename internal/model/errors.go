package model

import "errors"

// Sentinel errors returned when building a Target.
var (
	// ErrNoStartURI is returned when a target has no start URI.
	ErrNoStartURI = errors.New("start URI is required")

	// ErrUnsupportedScheme is returned when the start URI is not http or https.
	ErrUnsupportedScheme = errors.New("start URI scheme must be http or https")

	// ErrStartURINotInContext is returned when the start URI is not a member
	// of the target's context.
	ErrStartURINotInContext = errors.New("start URI is not in the context")

	// ErrStartURINotInScope is returned when the target is in-scope-only and
	// the scope definition rejects the start URI.
	ErrStartURINotInScope = errors.New("start URI is not in scope")

	// ErrNoScopeDefinition is returned when in-scope-only is requested without
	// a scope definition to check against.
	ErrNoScopeDefinition = errors.New("in-scope-only requires a scope definition")
)

// Sentinel errors returned by Options.Validate.
var (
	ErrInvalidBrowserCount     = errors.New("number of browsers must be at least 1")
	ErrNegativeLimit           = errors.New("crawl limits and wait times must not be negative")
	ErrInvalidBootstrapTimeout = errors.New("bootstrap timeout must be positive")
)
