package scope

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/nao1215/scopecrawl/internal/model"
)

// Policy is the immutable classification snapshot of one crawl session.
type Policy struct {
	allowed     []model.AllowedResource
	prefix      *PrefixValidator
	context     model.Context
	scopeMode   model.ScopeMode
	scope       model.ScopeDefinition
	startHost   string
	exclusions  []*regexp.Regexp
	checkPolicy model.ScopeCheckPolicy
}

// NewPolicy captures the classification rules of target. exclusions are the
// session and global exclude-URL regexes; each must match the whole URL.
func NewPolicy(target *model.Target, exclusions []string) (*Policy, error) {
	opts := target.Options()
	start := target.StartURI()

	p := &Policy{
		context:     target.Context(),
		scopeMode:   target.ScopeMode(),
		scope:       target.Scope(),
		startHost:   strings.ToLower(start.Hostname()),
		checkPolicy: opts.ScopeCheckPolicy,
	}

	for _, r := range opts.AllowedResources {
		if r.Enabled && r.Pattern != nil {
			p.allowed = append(p.allowed, r)
		}
	}

	if target.SubtreeOnly() {
		v, err := NewPrefixValidator(start)
		if err != nil {
			return nil, err
		}
		p.prefix = v
	}

	for _, expr := range exclusions {
		if expr == "" {
			continue
		}
		re, err := regexp.Compile(`^(?:` + expr + `)$`)
		if err != nil {
			return nil, fmt.Errorf("invalid exclusion regex %q: %w", expr, err)
		}
		p.exclusions = append(p.exclusions, re)
	}
	return p, nil
}

// CheckPolicy returns whether non-processed traffic is blocked or relabelled.
func (p *Policy) CheckPolicy() model.ScopeCheckPolicy { return p.checkPolicy }

// InScope is the predicate handed to the exploration engine. Under the
// strict policy it accepts exactly the URLs the proxy would forward; under
// the flexible policy it accepts everything.
func (p *Policy) InScope(rawURL string) bool {
	if p.checkPolicy == model.ScopeCheckFlexible {
		return true
	}
	return Classify(rawURL, p) == model.ResourceStateProcessed
}

// Classify returns the state of rawURL under p. The first matching rule wins:
//
//  1. an enabled allowed resource matches: Processed
//  2. subtree restriction and rawURL is outside it: OutOfScope
//  3. a context is set and rawURL is not a member: OutOfContext
//  4. in-scope-only and rawURL is not in scope: OutOfScope
//  5. neither context nor in-scope-only, and the host differs from the
//     start host: OutOfScope
//  6. an exclusion regex matches: Excluded
//  7. Processed
//
// URLs without a scheme or host are OutOfScope.
func Classify(rawURL string, p *Policy) model.ResourceState {
	for _, r := range p.allowed {
		if r.Pattern.MatchString(rawURL) {
			return model.ResourceStateProcessed
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return model.ResourceStateOutOfScope
	}

	if p.prefix != nil && !p.prefix.IsValid(u) {
		return model.ResourceStateOutOfScope
	}

	switch {
	case p.context != nil:
		if !p.context.IsInContext(rawURL) {
			return model.ResourceStateOutOfContext
		}
	case p.scopeMode == model.ScopeModeInScopeOnly:
		if p.scope == nil || !p.scope.IsInScope(rawURL) {
			return model.ResourceStateOutOfScope
		}
	case !strings.EqualFold(u.Hostname(), p.startHost):
		return model.ResourceStateOutOfScope
	}

	for _, re := range p.exclusions {
		if re.MatchString(rawURL) {
			return model.ResourceStateExcluded
		}
	}
	return model.ResourceStateProcessed
}
