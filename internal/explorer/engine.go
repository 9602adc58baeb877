package explorer

import (
	"context"
	"errors"
	"time"

	"github.com/nao1215/scopecrawl/internal/browser"
	"github.com/nao1215/scopecrawl/internal/model"
)

// Engine explores a web application with browsers obtained from a Provider.
// Run blocks until exploration ends and must return promptly once ctx is
// cancelled, after finishing the action in flight.
type Engine interface {
	Run(ctx context.Context, cfg Config) error
}

// Provider returns a ready browser for slot. It is called at most once per slot.
type Provider func(ctx context.Context, slot int) (browser.Browser, error)

// Limits are the exploration limits. They are enforced by the engine.
type Limits struct {
	// MaxDepth is the maximum number of actions away from the start page. 0 is unlimited.
	MaxDepth int

	// MaxStates is the maximum number of distinct pages. 0 is unlimited.
	MaxStates int

	// MaxDuration bounds the whole exploration. 0 is unlimited.
	MaxDuration time.Duration

	EventWait  time.Duration
	ReloadWait time.Duration

	ClickOnce    bool
	ClickDefault bool
	Elements     []string
	RandomInputs bool

	ExcludedElements []model.ExcludedElement
}

// LimitsFromOptions copies the exploration limits out of a tuning snapshot.
func LimitsFromOptions(o model.Options) Limits {
	return Limits{
		MaxDepth:         o.MaxCrawlDepth,
		MaxStates:        o.MaxCrawlStates,
		MaxDuration:      o.MaxDuration,
		EventWait:        o.EventWait,
		ReloadWait:       o.ReloadWait,
		ClickOnce:        o.ClickElementsOnce,
		ClickDefault:     o.ClickDefaultElements,
		Elements:         append([]string(nil), o.Elements...),
		RandomInputs:     o.RandomInputs,
		ExcludedElements: append([]model.ExcludedElement(nil), o.ExcludedElements...),
	}
}

// Config is everything an Engine needs for one exploration.
type Config struct {
	StartURL string

	// InScope reports whether the engine may act towards a URL.
	InScope func(rawURL string) bool

	// Browsers is the number of browser slots.
	Browsers int

	Provider Provider

	// Release is called, if set, when a slot stops using its browser.
	Release func(slot int)

	Limits Limits
}

// Validate checks that the configuration is complete.
func (c Config) Validate() error {
	switch {
	case c.StartURL == "":
		return errors.New("explorer: start URL is required")
	case c.InScope == nil:
		return errors.New("explorer: scope predicate is required")
	case c.Provider == nil:
		return errors.New("explorer: browser provider is required")
	case c.Browsers < 1:
		return errors.New("explorer: at least one browser is required")
	}
	return nil
}
