package config

import (
	"fmt"
	"slices"

	"github.com/nao1215/scopecrawl/internal/auth"
	"github.com/nao1215/scopecrawl/internal/model"
	"github.com/nao1215/scopecrawl/internal/scope"
)

// PatternSet is a pair of include and exclude regex lists.
type PatternSet struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// IsEmpty reports whether no include pattern is set.
func (p PatternSet) IsEmpty() bool { return len(p.Include) == 0 }

// ContextConfig defines a named context by URL regexes.
type ContextConfig struct {
	Name       string `yaml:"name"`
	PatternSet `yaml:",inline"`
}

// UserConfig defines a user whose session is carried by a cookie and headers.
type UserConfig struct {
	Name string `yaml:"name"`

	// Context names the context the user belongs to.
	Context string `yaml:"context,omitempty"`

	// Cookie uses the Cookie header syntax: "name1=value1; name2=value2".
	Cookie string `yaml:"cookie,omitempty"`

	Headers map[string]string `yaml:"headers,omitempty"`
}

// AllowedResourceConfig is an allow-list entry fetched regardless of scope.
type AllowedResourceConfig struct {
	Regex   string `yaml:"regex"`
	Enabled bool   `yaml:"enabled"`
}

// File represents the structure of the .scopecrawl configuration file.
type File struct {
	// Options overrides the crawl tuning defaults.
	Options model.Options `yaml:"options"`

	// AllowedResources replaces the default .js and .css allow-list when set.
	AllowedResources []AllowedResourceConfig `yaml:"allowed_resources,omitempty"`

	Contexts []ContextConfig `yaml:"contexts,omitempty"`
	Users    []UserConfig    `yaml:"users,omitempty"`

	// Scope is the global scope used by --in-scope-only and protect mode.
	Scope PatternSet `yaml:"scope,omitempty"`

	// Exclusions are global exclude-URL regexes applied to every crawl.
	Exclusions []string `yaml:"exclusions,omitempty"`

	// Headers are added to every upstream request.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Context builds the named context.
func (f *File) Context(name string) (*scope.RegexContext, error) {
	i := slices.IndexFunc(f.Contexts, func(c ContextConfig) bool { return c.Name == name })
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContext, name)
	}
	c := f.Contexts[i]
	return scope.NewRegexContext(c.Name, c.Include, c.Exclude)
}

// User builds the named user. The user is bound to its context if it names one.
func (f *File) User(name string) (*auth.CredentialUser, error) {
	i := slices.IndexFunc(f.Users, func(u UserConfig) bool { return u.Name == name })
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUser, name)
	}
	u := f.Users[i]

	var ctx model.Context
	if u.Context != "" {
		c, err := f.Context(u.Context)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Name, err)
		}
		ctx = c
	}
	return auth.NewCredentialUser(u.Name, ctx, u.Cookie, u.Headers)
}

// ScopeDefinition builds the global scope, or returns nil when the file has none.
func (f *File) ScopeDefinition() (model.ScopeDefinition, error) {
	if f.Scope.IsEmpty() {
		return nil, nil
	}
	s, err := scope.NewRegexScope(f.Scope.Include, f.Scope.Exclude)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// BuildAllowedResources compiles the allow-list, or returns nil when the
// file keeps the defaults.
func (f *File) BuildAllowedResources() ([]model.AllowedResource, error) {
	if len(f.AllowedResources) == 0 {
		return nil, nil
	}
	resources := make([]model.AllowedResource, 0, len(f.AllowedResources))
	for _, a := range f.AllowedResources {
		r, err := model.NewAllowedResource(a.Regex, a.Enabled)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}
