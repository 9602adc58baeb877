package model

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Default crawl tuning values.
const (
	DefaultNumberOfBrowsers = 1
	DefaultBrowserID        = "chrome-headless"
	DefaultMaxCrawlDepth    = 10
	DefaultMaxCrawlStates   = 0
	DefaultMaxDuration      = 60 * time.Minute
	DefaultEventWait        = 1000 * time.Millisecond
	DefaultReloadWait       = 1000 * time.Millisecond
	DefaultBootstrapTimeout = 30 * time.Second
	DefaultLanguage         = "en"
)

// defaultAllowedResources are always fetched regardless of scope so pages
// keep their scripts and stylesheets.
var defaultAllowedResources = []string{
	`^http.*\.js(?:\?.*)?$`,
	`^http.*\.css(?:\?.*)?$`,
}

// defaultElements are the element names the explorer interacts with
// when ClickDefaultElements is false.
var defaultElements = []string{
	"a", "button", "td", "span", "div", "tr", "ol", "li", "radio",
	"form", "select", "input", "option", "img", "p", "abbr", "address",
	"area", "article", "aside", "audio", "canvas", "details", "footer",
	"header", "label", "nav", "section", "summary", "table", "textarea",
	"th", "ul", "video",
}

// DefaultElements returns a copy of the default clickable element names.
func DefaultElements() []string {
	return append([]string(nil), defaultElements...)
}

// AllowedResource is an allow-list entry. A match against the full request
// URL short-circuits classification to ResourceStateProcessed.
type AllowedResource struct {
	Pattern *regexp.Regexp
	Enabled bool
}

// NewAllowedResource compiles regex case-insensitively. The pattern must
// match the whole URL, not a substring of it.
func NewAllowedResource(regex string, enabled bool) (AllowedResource, error) {
	if regex == "" {
		return AllowedResource{}, errors.New("allowed resource regex is empty")
	}
	re, err := regexp.Compile(`(?i)^(?:` + regex + `)$`)
	if err != nil {
		return AllowedResource{}, fmt.Errorf("invalid allowed resource regex %q: %w", regex, err)
	}
	return AllowedResource{Pattern: re, Enabled: enabled}, nil
}

// Matches reports whether the entry is enabled and matches rawURL.
func (a AllowedResource) Matches(rawURL string) bool {
	return a.Enabled && a.Pattern != nil && a.Pattern.MatchString(rawURL)
}

// DefaultAllowedResources returns the built-in .js and .css allow-list.
func DefaultAllowedResources() []AllowedResource {
	resources := make([]AllowedResource, 0, len(defaultAllowedResources))
	for _, regex := range defaultAllowedResources {
		r, err := NewAllowedResource(regex, true)
		if err != nil {
			panic(err) // built-in patterns are constant
		}
		resources = append(resources, r)
	}
	return resources
}

// ExcludedElement describes an element the explorer must never interact with.
// An element matches when its tag equals Element and every non-empty
// criterion (XPath, Text, attribute) matches too.
type ExcludedElement struct {
	Description    string `yaml:"description"`
	Element        string `yaml:"element"`
	XPath          string `yaml:"xpath,omitempty"`
	Text           string `yaml:"text,omitempty"`
	AttributeName  string `yaml:"attribute_name,omitempty"`
	AttributeValue string `yaml:"attribute_value,omitempty"`
	Enabled        bool   `yaml:"enabled"`
}

// Validate checks that the exclusion rule is usable.
func (e ExcludedElement) Validate() error {
	if e.Description == "" {
		return errors.New("excluded element: description is required")
	}
	if e.Element == "" {
		return fmt.Errorf("excluded element %q: element is required", e.Description)
	}
	if (e.AttributeName == "") != (e.AttributeValue == "") {
		return fmt.Errorf("excluded element %q: attribute name and value must be set together", e.Description)
	}
	return nil
}

// Options is the crawl tuning snapshot carried by a Target.
type Options struct {
	// NumberOfBrowsers is the number of browser workers driven in parallel.
	NumberOfBrowsers int `yaml:"number_of_browsers"`

	// BrowserID selects the browser launcher: chrome-headless, chrome or http.
	BrowserID string `yaml:"browser"`

	// MaxCrawlDepth limits how many clicks away from the start page the
	// explorer goes. Zero means unlimited.
	MaxCrawlDepth int `yaml:"max_crawl_depth"`

	// MaxCrawlStates limits the number of distinct pages visited. Zero means unlimited.
	MaxCrawlStates int `yaml:"max_crawl_states"`

	// MaxDuration bounds the exploration. Zero means unlimited.
	MaxDuration time.Duration `yaml:"max_duration"`

	EventWait  time.Duration `yaml:"event_wait"`
	ReloadWait time.Duration `yaml:"reload_wait"`

	ClickDefaultElements bool     `yaml:"click_default_elements"`
	ClickElementsOnce    bool     `yaml:"click_elements_once"`
	RandomInputs         bool     `yaml:"random_inputs"`
	Elements             []string `yaml:"elements,omitempty"`

	AllowedResources []AllowedResource `yaml:"-"`
	ScopeCheckPolicy ScopeCheckPolicy  `yaml:"scope_check"`
	ExcludedElements []ExcludedElement `yaml:"excluded_elements,omitempty"`

	// BootstrapTimeout bounds the window in which a worker's proxy forwards
	// traffic unclassified while the browser attaches.
	BootstrapTimeout time.Duration `yaml:"bootstrap_timeout"`

	// Language selects the locale of the synthetic block response body.
	Language string `yaml:"language"`
}

// NewOptions returns Options populated with default values.
func NewOptions() Options {
	return Options{
		NumberOfBrowsers:     DefaultNumberOfBrowsers,
		BrowserID:            DefaultBrowserID,
		MaxCrawlDepth:        DefaultMaxCrawlDepth,
		MaxCrawlStates:       DefaultMaxCrawlStates,
		MaxDuration:          DefaultMaxDuration,
		EventWait:            DefaultEventWait,
		ReloadWait:           DefaultReloadWait,
		ClickDefaultElements: true,
		ClickElementsOnce:    true,
		RandomInputs:         true,
		Elements:             DefaultElements(),
		AllowedResources:     DefaultAllowedResources(),
		ScopeCheckPolicy:     ScopeCheckStrict,
		BootstrapTimeout:     DefaultBootstrapTimeout,
		Language:             DefaultLanguage,
	}
}

// Validate checks the options for values the crawl cannot work with.
func (o Options) Validate() error {
	if o.NumberOfBrowsers < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidBrowserCount, o.NumberOfBrowsers)
	}
	if o.MaxCrawlDepth < 0 || o.MaxCrawlStates < 0 || o.MaxDuration < 0 {
		return ErrNegativeLimit
	}
	if o.EventWait < 0 || o.ReloadWait < 0 {
		return ErrNegativeLimit
	}
	if o.BootstrapTimeout <= 0 {
		return ErrInvalidBootstrapTimeout
	}
	for _, e := range o.ExcludedElements {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy so later changes to o are not visible through
// the copy.
func (o Options) Clone() Options {
	c := o
	c.Elements = append([]string(nil), o.Elements...)
	c.AllowedResources = append([]AllowedResource(nil), o.AllowedResources...)
	c.ExcludedElements = append([]ExcludedElement(nil), o.ExcludedElements...)
	return c
}
