package browser

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Browser IDs accepted by NewLauncher.
const (
	IDChromeHeadless = "chrome-headless"
	IDChrome         = "chrome"
	IDHTTP           = "http"
)

var (
	// ErrUnknownBrowser is returned by NewLauncher for an unsupported browser ID.
	ErrUnknownBrowser = errors.New("unknown browser")

	// ErrBrowserClosed is returned when a closed browser is used.
	ErrBrowserClosed = errors.New("browser is closed")

	// ErrCloseTimeout is returned when Chrome did not close gracefully in time
	// and its process was killed.
	ErrCloseTimeout = errors.New("browser did not close in time")
)

// ProxyEndpoint is where a launched browser sends all of its traffic.
type ProxyEndpoint struct {
	// Addr is the proxy's "127.0.0.1:port" address.
	Addr string

	// RootCAs trusts the proxy's interception CA. Browsers that cannot be
	// given a pool ignore certificate errors instead.
	RootCAs *x509.CertPool
}

// Page is the state of the browser's current document.
type Page struct {
	URL  string
	HTML string
}

// Browser is one driven browser session.
type Browser interface {
	// Navigate loads rawURL and waits for the document to load.
	Navigate(ctx context.Context, rawURL string) error

	// Snapshot returns the current document.
	Snapshot(ctx context.Context) (Page, error)

	// Close ends the session and releases its process, if any.
	Close() error
}

// Launcher starts browser sessions routed through a proxy. Launch returns
// once the session is ready to take commands.
type Launcher interface {
	Launch(ctx context.Context, endpoint ProxyEndpoint) (Browser, error)
}

// NewLauncher returns the launcher registered under id.
func NewLauncher(id string, logger *slog.Logger) (Launcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(strings.TrimSpace(id)) {
	case IDChromeHeadless, "":
		return NewChromeLauncher(WithHeadless(true), WithChromeLogger(logger)), nil
	case IDChrome:
		return NewChromeLauncher(WithHeadless(false), WithChromeLogger(logger)), nil
	case IDHTTP:
		return NewHTTPLauncher(), nil
	default:
		return nil, fmt.Errorf("%w: %q (want %s, %s or %s)", ErrUnknownBrowser, id, IDChromeHeadless, IDChrome, IDHTTP)
	}
}
