package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/scopecrawl/internal/model"
	"github.com/nao1215/scopecrawl/internal/upstream"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "scopecrawl"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultRequestsPerSecond is the per-browser navigation rate.
	// Zero disables rate limiting.
	DefaultRequestsPerSecond = 0

	// DefaultMetricsAddr disables the metrics endpoint.
	DefaultMetricsAddr = ""
)

// Config holds all configuration options for a crawl.
// It is populated from the configuration file and CLI flags and passed
// through the application rather than kept in global state.
type Config struct {
	// StartURL is the page the crawl begins at.
	StartURL string

	// Options is the crawl tuning snapshot handed to the target.
	Options model.Options

	// Mode gates which crawls may run.
	Mode model.Mode

	// SubtreeOnly restricts the crawl to the start URL's path prefix.
	SubtreeOnly bool

	// InScopeOnly restricts the crawl to the file's scope section.
	InScopeOnly bool

	// ContextName selects a context from the configuration file.
	ContextName string

	// UserName selects a user from the configuration file.
	// The user's context is used when ContextName is empty.
	UserName string

	// ProxyAddress routes upstream traffic through a SOCKS5 proxy ("host:port").
	ProxyAddress string

	// UseTor routes upstream traffic through an embedded Tor daemon.
	UseTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// RequestsPerSecond limits navigations per browser. Zero is unlimited.
	RequestsPerSecond float64

	// Verbose enables debug logging.
	Verbose bool

	// JSONReport and MarkdownReport select the report format.
	// They are mutually exclusive; plain text is the default.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the output file for the report. Empty writes to stdout.
	ReportFile string

	// DBDir is the directory of the result database.
	// Defaults to the XDG data directory (~/.local/share/scopecrawl on Linux).
	DBDir string

	// SaveToDB stores the crawl in the result database.
	SaveToDB bool

	// MetricsAddr serves Prometheus metrics while crawling when set.
	MetricsAddr string

	// FailIfFoundLessThan fails the run when fewer in-scope resources are found.
	FailIfFoundLessThan int

	// WarnIfFoundLessThan warns when fewer in-scope resources are found.
	WarnIfFoundLessThan int

	// ConfigFilePath is the path to the configuration file.
	// If empty, FindConfigFile searches the usual locations.
	ConfigFilePath string

	// File holds the loaded configuration file, or nil.
	File *File
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Options:           model.NewOptions(),
		Mode:              model.ModeStandard,
		TorStartupTimeout: DefaultTorStartupTimeout,
		RequestsPerSecond: DefaultRequestsPerSecond,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
		MetricsAddr:       DefaultMetricsAddr,
	}
}

// XDGDataDir returns the XDG data directory for scopecrawl.
// On Linux: ~/.local/share/scopecrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for scopecrawl.
// On Linux: ~/.config/scopecrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for scopecrawl.
// On Linux: ~/.cache/scopecrawl
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return ErrNoTarget
	}
	if err := c.Options.Validate(); err != nil {
		return err
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingUpstream
	}
	if err := c.validateOnion(); err != nil {
		return err
	}
	if c.UseTor && c.TorStartupTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.FailIfFoundLessThan < 0 || c.WarnIfFoundLessThan < 0 {
		return ErrInvalidThreshold
	}
	if c.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}
	if c.InScopeOnly && (c.File == nil || c.File.Scope.IsEmpty()) {
		return ErrNoScope
	}
	if (c.ContextName != "" || c.UserName != "") && c.File == nil {
		return ErrConfigNotFound
	}
	if c.SaveToDB && c.DBDir == "" {
		return ErrNoDBDir
	}
	return nil
}

// validateOnion rejects onion start URLs that are malformed or cannot be
// reached over the configured upstream.
func (c *Config) validateOnion() error {
	u, err := url.Parse(c.StartURL)
	if err != nil || !upstream.IsOnionHost(u.Host) {
		return nil
	}
	if !upstream.ValidOnionHost(u.Host) {
		return fmt.Errorf("%w: %s", ErrInvalidOnionAddress, u.Hostname())
	}
	if !c.UseTor && c.ProxyAddress == "" {
		return ErrOnionNeedsTor
	}
	return nil
}
