package browser

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"
)

// maxDocumentSize bounds the document kept by the HTTP browser.
const maxDocumentSize = 10 * 1024 * 1024 // 10MB

// HTTPLauncher launches HTML-only browsers built on net/http. They do not
// execute JavaScript, but they do keep cookies and follow redirects.
type HTTPLauncher struct {
	userAgent string
	timeout   time.Duration
}

// HTTPOption configures an HTTPLauncher.
type HTTPOption func(*HTTPLauncher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(l *HTTPLauncher) {
		l.userAgent = ua
	}
}

// WithRequestTimeout bounds each navigation.
func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(l *HTTPLauncher) {
		l.timeout = d
	}
}

// NewHTTPLauncher creates an HTTP browser launcher.
func NewHTTPLauncher(opts ...HTTPOption) *HTTPLauncher {
	l := &HTTPLauncher{
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) scopecrawl",
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch returns a browser whose client sends everything to endpoint.
func (l *HTTPLauncher) Launch(ctx context.Context, endpoint ProxyEndpoint) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if endpoint.Addr == "" {
		return nil, errors.New("http browser: proxy address is empty")
	}
	proxyURL, err := url.Parse("http://" + endpoint.Addr)
	if err != nil {
		return nil, fmt.Errorf("http browser: invalid proxy address: %w", err)
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options
	transport := &http.Transport{
		Proxy:               http.ProxyURL(proxyURL),
		TLSClientConfig:     &tls.Config{RootCAs: endpoint.RootCAs, MinVersion: tls.VersionTLS12},
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	return &httpBrowser{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   l.timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		transport: transport,
		userAgent: l.userAgent,
	}, nil
}

type httpBrowser struct {
	client    *http.Client
	transport *http.Transport
	userAgent string

	mu      sync.Mutex
	current Page
	closed  bool
}

func (b *httpBrowser) Navigate(ctx context.Context, rawURL string) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBrowserClosed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", b.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = Page{URL: resp.Request.URL.String(), HTML: string(body)}
	return nil
}

func (b *httpBrowser) Snapshot(_ context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Page{}, ErrBrowserClosed
	}
	return b.current, nil
}

func (b *httpBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.transport.CloseIdleConnections()
	}
	return nil
}
