package model

import (
	"net/http"
	"net/url"
	"strings"
)

// Context is a named grouping of URLs with its own membership test.
type Context interface {
	Name() string
	IsInContext(rawURL string) bool
}

// User is an identity crawled under a Context.
type User interface {
	Name() string
	Context() Context
	// ApplyCredentials adds the user's session material to an outgoing request.
	ApplyCredentials(h http.Header)
}

// ScopeDefinition decides whether a URL belongs to the session's scope.
type ScopeDefinition interface {
	IsInScope(rawURL string) bool
}

// Target describes what to crawl. It is immutable once built; use
// NewTargetBuilder to create one.
type Target struct {
	startURI    *url.URL
	scopeMode   ScopeMode
	subtreeOnly bool
	context     Context
	user        User
	scope       ScopeDefinition
	options     Options
}

// StartURI returns a copy of the start URI.
func (t *Target) StartURI() *url.URL {
	u := *t.startURI
	return &u
}

// ScopeMode returns the scope rule bounding the crawl.
func (t *Target) ScopeMode() ScopeMode { return t.scopeMode }

// SubtreeOnly reports whether the crawl is restricted to the start URI's path prefix.
func (t *Target) SubtreeOnly() bool { return t.subtreeOnly }

// Context returns the target context, or nil.
func (t *Target) Context() Context { return t.context }

// User returns the target user, or nil.
func (t *Target) User() User { return t.user }

// Scope returns the scope definition used by in-scope-only crawls, or nil.
func (t *Target) Scope() ScopeDefinition { return t.scope }

// Options returns a copy of the tuning snapshot.
func (t *Target) Options() Options { return t.options.Clone() }

// TargetBuilder accumulates the settings of a Target.
type TargetBuilder struct {
	startURI    string
	inScopeOnly bool
	subtreeOnly bool
	context     Context
	user        User
	scope       ScopeDefinition
	options     Options
}

// NewTargetBuilder returns a builder with default options.
func NewTargetBuilder() *TargetBuilder {
	return &TargetBuilder{options: NewOptions()}
}

// StartURI sets the URI the crawl starts from.
func (b *TargetBuilder) StartURI(rawURL string) *TargetBuilder {
	b.startURI = rawURL
	return b
}

// InScopeOnly restricts the crawl to the scope definition. It has no effect
// when a context or user is set.
func (b *TargetBuilder) InScopeOnly(scope ScopeDefinition) *TargetBuilder {
	b.inScopeOnly = true
	b.scope = scope
	return b
}

// SubtreeOnly restricts the crawl to URLs under the start URI's path.
func (b *TargetBuilder) SubtreeOnly(v bool) *TargetBuilder {
	b.subtreeOnly = v
	return b
}

// Context bounds the crawl to the members of c. A previously set user is
// kept only if it belongs to c.
func (b *TargetBuilder) Context(c Context) *TargetBuilder {
	b.context = c
	if b.user != nil && b.user.Context() != c {
		b.user = nil
	}
	return b
}

// User crawls as u, which binds the target to the user's context.
func (b *TargetBuilder) User(u User) *TargetBuilder {
	b.user = u
	if u != nil {
		b.context = u.Context()
	}
	return b
}

// Options sets the tuning snapshot. The builder keeps its own copy.
func (b *TargetBuilder) Options(o Options) *TargetBuilder {
	b.options = o.Clone()
	return b
}

// Build validates the settings and returns the immutable Target.
func (b *TargetBuilder) Build() (*Target, error) {
	if strings.TrimSpace(b.startURI) == "" {
		return nil, ErrNoStartURI
	}
	u, err := url.Parse(b.startURI)
	if err != nil || u.Host == "" {
		return nil, ErrUnsupportedScheme
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrUnsupportedScheme
	}
	if err := b.options.Validate(); err != nil {
		return nil, err
	}

	t := &Target{
		startURI:    u,
		subtreeOnly: b.subtreeOnly,
		context:     b.context,
		user:        b.user,
		scope:       b.scope,
		options:     b.options.Clone(),
	}

	switch {
	case t.context != nil:
		t.scopeMode = ScopeModeContextBound
		if !t.context.IsInContext(u.String()) {
			return nil, ErrStartURINotInContext
		}
	case b.inScopeOnly:
		t.scopeMode = ScopeModeInScopeOnly
		if t.scope == nil {
			return nil, ErrNoScopeDefinition
		}
		if !t.scope.IsInScope(u.String()) {
			return nil, ErrStartURINotInScope
		}
	default:
		t.scopeMode = ScopeModeUnrestricted
	}
	return t, nil
}
