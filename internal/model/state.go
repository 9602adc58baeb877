package model

import (
	"fmt"
	"strings"
)

// ResourceState is the fate assigned to one observed request.
// Exactly one state is assigned per request. The numeric order is only
// used for display (report tables, history listings), never for precedence.
type ResourceState int

const (
	// ResourceStateProcessed means the request was in scope and forwarded.
	ResourceStateProcessed ResourceState = iota

	// ResourceStateOutOfScope means the request failed the subtree, scope
	// or target host checks.
	ResourceStateOutOfScope

	// ResourceStateOutOfContext means a context was configured and the
	// request URL is not a member of it.
	ResourceStateOutOfContext

	// ResourceStateExcluded means the request URL matched an exclusion regex.
	ResourceStateExcluded

	// ResourceStateIOError means the upstream fetch failed.
	ResourceStateIOError

	// ResourceStateThirdParty means an out-of-scope resource was fetched
	// under the flexible policy and is attributed to incidental content.
	ResourceStateThirdParty
)

// resourceStateNames holds the stable names used in logs, the database and reports.
var resourceStateNames = map[ResourceState]string{
	ResourceStateProcessed:    "processed",
	ResourceStateOutOfScope:   "out_of_scope",
	ResourceStateOutOfContext: "out_of_context",
	ResourceStateExcluded:     "excluded",
	ResourceStateIOError:      "io_error",
	ResourceStateThirdParty:   "third_party",
}

// AllResourceStates returns every state in display order.
func AllResourceStates() []ResourceState {
	return []ResourceState{
		ResourceStateProcessed,
		ResourceStateOutOfScope,
		ResourceStateOutOfContext,
		ResourceStateExcluded,
		ResourceStateIOError,
		ResourceStateThirdParty,
	}
}

// String returns the stable name of the state.
func (s ResourceState) String() string {
	if name, ok := resourceStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Label returns a human-readable label for reports.
func (s ResourceState) Label() string {
	switch s {
	case ResourceStateProcessed:
		return "Processed"
	case ResourceStateOutOfScope:
		return "Out of Scope"
	case ResourceStateOutOfContext:
		return "Out of Context"
	case ResourceStateExcluded:
		return "Excluded"
	case ResourceStateIOError:
		return "I/O Error"
	case ResourceStateThirdParty:
		return "Third Party"
	default:
		return "Unknown"
	}
}

// IsInScope reports whether the exchange belongs to the crawled application,
// i.e. whether it is inserted into the site map.
func (s ResourceState) IsInScope() bool {
	return s == ResourceStateProcessed || s == ResourceStateThirdParty
}

// MarshalText implements encoding.TextMarshaler.
func (s ResourceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ResourceState) UnmarshalText(text []byte) error {
	parsed, err := ParseResourceState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseResourceState converts a stable state name back into a ResourceState.
func ParseResourceState(name string) (ResourceState, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for state, n := range resourceStateNames {
		if n == name {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown resource state %q", name)
}

// ScopeMode selects which scope rule bounds a crawl target.
type ScopeMode int

const (
	// ScopeModeUnrestricted bounds the crawl to the start URI's host only.
	ScopeModeUnrestricted ScopeMode = iota

	// ScopeModeInScopeOnly bounds the crawl to the session's scope definition.
	ScopeModeInScopeOnly

	// ScopeModeContextBound bounds the crawl to a context's members.
	ScopeModeContextBound
)

// String returns a human-readable name of the scope mode.
func (m ScopeMode) String() string {
	switch m {
	case ScopeModeUnrestricted:
		return "unrestricted"
	case ScopeModeInScopeOnly:
		return "in_scope_only"
	case ScopeModeContextBound:
		return "context_bound"
	default:
		return "unknown"
	}
}

// ScopeCheckPolicy decides what happens to traffic that is not Processed.
type ScopeCheckPolicy int

const (
	// ScopeCheckStrict blocks non-processed requests with a synthetic 403.
	ScopeCheckStrict ScopeCheckPolicy = iota

	// ScopeCheckFlexible forwards everything and relabels off-target traffic.
	ScopeCheckFlexible
)

// String returns the configuration name of the policy.
func (p ScopeCheckPolicy) String() string {
	switch p {
	case ScopeCheckStrict:
		return "strict"
	case ScopeCheckFlexible:
		return "flexible"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p ScopeCheckPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ScopeCheckPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseScopeCheckPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseScopeCheckPolicy parses "strict" or "flexible" (case-insensitive).
func ParseScopeCheckPolicy(name string) (ScopeCheckPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "strict", "":
		return ScopeCheckStrict, nil
	case "flexible":
		return ScopeCheckFlexible, nil
	default:
		return 0, fmt.Errorf("unknown scope check policy %q: want strict or flexible", name)
	}
}

// Mode is the operating mode of the host application. It gates whether a
// crawl may start at all.
type Mode int

const (
	// ModeStandard allows any crawl.
	ModeStandard Mode = iota

	// ModeSafe forbids every crawl.
	ModeSafe

	// ModeProtect only allows crawls whose start URI is in scope.
	ModeProtect

	// ModeAttack allows any crawl.
	ModeAttack
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeSafe:
		return "safe"
	case ModeProtect:
		return "protect"
	case ModeAttack:
		return "attack"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name (case-insensitive). An empty name is standard.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "standard", "":
		return ModeStandard, nil
	case "safe":
		return ModeSafe, nil
	case "protect":
		return ModeProtect, nil
	case "attack":
		return ModeAttack, nil
	default:
		return 0, fmt.Errorf("unknown mode %q: want safe, protect, standard or attack", name)
	}
}
