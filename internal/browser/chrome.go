package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// closeTimeout bounds the graceful part of closing Chrome.
const closeTimeout = 10 * time.Second

// ChromeLauncher launches Chrome through chromedp.
type ChromeLauncher struct {
	headless bool
	execPath string
	logger   *slog.Logger
}

// ChromeOption configures a ChromeLauncher.
type ChromeOption func(*ChromeLauncher)

// WithHeadless selects headless mode.
func WithHeadless(headless bool) ChromeOption {
	return func(l *ChromeLauncher) {
		l.headless = headless
	}
}

// WithExecPath sets the Chrome binary. By default chromedp searches the usual locations.
func WithExecPath(path string) ChromeOption {
	return func(l *ChromeLauncher) {
		l.execPath = path
	}
}

// WithChromeLogger sets the logger receiving chromedp's messages.
func WithChromeLogger(logger *slog.Logger) ChromeOption {
	return func(l *ChromeLauncher) {
		l.logger = logger
	}
}

// NewChromeLauncher creates a launcher for headless Chrome unless configured otherwise.
func NewChromeLauncher(opts ...ChromeOption) *ChromeLauncher {
	l := &ChromeLauncher{
		headless: true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// allocatorOptions returns the Chrome flags for a session behind endpoint.
func (l *ChromeLauncher) allocatorOptions(endpoint ProxyEndpoint) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.ProxyServer("http://"+endpoint.Addr),
		// Chrome bypasses proxies for loopback by default.
		chromedp.Flag("proxy-bypass-list", "<-loopback>"),
	)
	if l.execPath != "" {
		opts = append(opts, chromedp.ExecPath(l.execPath))
	}
	return opts
}

// Launch starts Chrome and waits until its first tab accepts commands or ctx ends.
func (l *ChromeLauncher) Launch(ctx context.Context, endpoint ProxyEndpoint) (Browser, error) {
	// The session must outlive ctx, which only bounds startup.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions(endpoint)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			l.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "chromedp"))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			l.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "chromedp"))
		}),
	)

	b := &chromeBrowser{
		ctx: browserCtx,
		graceful: func() error {
			err := chromedp.Cancel(browserCtx)
			browserCancel()
			return err
		},
		allocCancel:  allocCancel,
		closeTimeout: closeTimeout,
	}

	ready := make(chan error, 1)
	go func() {
		ready <- chromedp.Run(browserCtx)
	}()

	select {
	case err := <-ready:
		if err != nil {
			// Allocation failed, so the tab context must not be cancelled:
			// its cancel func waits for an allocation that never happened.
			allocCancel()
			return nil, fmt.Errorf("failed to start chrome: %w", err)
		}
		return b, nil
	case <-ctx.Done():
		allocCancel()
		go func() {
			if err := <-ready; err == nil {
				browserCancel()
			}
		}()
		return nil, ctx.Err()
	}
}

// chromeBrowser is a chromedp-driven Chrome session.
type chromeBrowser struct {
	ctx          context.Context
	graceful     func() error
	allocCancel  context.CancelFunc
	closeOnce    sync.Once
	closeErr     error
	closeTimeout time.Duration
}

// run executes actions on the tab, aborting when ctx ends.
func (b *chromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (b *chromeBrowser) Navigate(ctx context.Context, rawURL string) error {
	return b.run(ctx, chromedp.Navigate(rawURL))
}

func (b *chromeBrowser) Snapshot(ctx context.Context) (Page, error) {
	var page Page
	err := b.run(ctx,
		chromedp.Location(&page.URL),
		chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
	)
	return page, err
}

// Close closes the browser gracefully, then kills the process. The
// graceful part is bounded by closeTimeout.
func (b *chromeBrowser) Close() error {
	b.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			done <- b.graceful()
		}()

		select {
		case b.closeErr = <-done:
		case <-time.After(b.closeTimeout):
			b.closeErr = ErrCloseTimeout
		}
		b.allocCancel()
	})
	return b.closeErr
}
