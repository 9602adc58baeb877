package config

import (
	"fmt"

	"github.com/nao1215/scopecrawl/internal/model"
)

// Target builds the crawl target described by the configuration.
func (c *Config) Target() (*model.Target, error) {
	b := model.NewTargetBuilder().
		StartURI(c.StartURL).
		SubtreeOnly(c.SubtreeOnly).
		Options(c.Options)

	if c.File == nil {
		return b.Build()
	}

	switch {
	case c.UserName != "":
		u, err := c.File.User(c.UserName)
		if err != nil {
			return nil, err
		}
		if c.ContextName != "" && (u.Context() == nil || u.Context().Name() != c.ContextName) {
			return nil, fmt.Errorf("%w: user %q does not belong to context %q", ErrUnknownUser, c.UserName, c.ContextName)
		}
		b.User(u)
	case c.ContextName != "":
		ctx, err := c.File.Context(c.ContextName)
		if err != nil {
			return nil, err
		}
		b.Context(ctx)
	}

	def, err := c.File.ScopeDefinition()
	if err != nil {
		return nil, err
	}
	if c.InScopeOnly {
		b.InScopeOnly(def)
	}
	return b.Build()
}

// GlobalScope returns the file's scope definition for protect mode, or nil.
func (c *Config) GlobalScope() (model.ScopeDefinition, error) {
	if c.File == nil {
		return nil, nil
	}
	return c.File.ScopeDefinition()
}

// Exclusions returns the global exclude-URL regexes.
func (c *Config) Exclusions() []string {
	if c.File == nil {
		return nil
	}
	return c.File.Exclusions
}

// UpstreamHeaders returns the headers added to every upstream request.
func (c *Config) UpstreamHeaders() map[string]string {
	if c.File == nil {
		return nil
	}
	return c.File.Headers
}
