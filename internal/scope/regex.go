package scope

import (
	"fmt"
	"regexp"
)

// patternSet matches URLs that fully match an include regex and no exclude regex.
type patternSet struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

func newPatternSet(include, exclude []string) (patternSet, error) {
	var set patternSet
	var err error
	if set.include, err = compileAll(include); err != nil {
		return patternSet{}, err
	}
	if set.exclude, err = compileAll(exclude); err != nil {
		return patternSet{}, err
	}
	return set, nil
}

func compileAll(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(`^(?:` + expr + `)$`)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (s patternSet) matches(rawURL string) bool {
	for _, re := range s.exclude {
		if re.MatchString(rawURL) {
			return false
		}
	}
	for _, re := range s.include {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// RegexContext is a model.Context whose membership is defined by regexes.
type RegexContext struct {
	name     string
	patterns patternSet
}

// NewRegexContext compiles a named context.
func NewRegexContext(name string, include, exclude []string) (*RegexContext, error) {
	set, err := newPatternSet(include, exclude)
	if err != nil {
		return nil, fmt.Errorf("context %q: %w", name, err)
	}
	return &RegexContext{name: name, patterns: set}, nil
}

// Name returns the context name.
func (c *RegexContext) Name() string { return c.name }

// IsInContext reports whether rawURL is a member of the context.
func (c *RegexContext) IsInContext(rawURL string) bool {
	return c.patterns.matches(rawURL)
}

// RegexScope is a model.ScopeDefinition defined by regexes.
type RegexScope struct {
	patterns patternSet
}

// NewRegexScope compiles a scope definition.
func NewRegexScope(include, exclude []string) (*RegexScope, error) {
	set, err := newPatternSet(include, exclude)
	if err != nil {
		return nil, fmt.Errorf("scope: %w", err)
	}
	return &RegexScope{patterns: set}, nil
}

// IsInScope reports whether rawURL is in scope.
func (s *RegexScope) IsInScope(rawURL string) bool {
	return s.patterns.matches(rawURL)
}
