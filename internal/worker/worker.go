package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nao1215/scopecrawl/internal/browser"
	"github.com/nao1215/scopecrawl/internal/model"
	"github.com/nao1215/scopecrawl/internal/proxy"
	"github.com/nao1215/scopecrawl/internal/scope"
)

// State is the lifecycle state of a Worker.
type State int

const (
	// StateCreated is a worker that has not been started.
	StateCreated State = iota
	// StateProxyBound has a listening proxy but no browser yet.
	StateProxyBound
	// StateBrowserAttached has a ready browser; the proxy still bootstraps.
	StateBrowserAttached
	// StateRunning enforces the scope policy.
	StateRunning
	// StateShuttingDown is releasing its resources.
	StateShuttingDown
	// StateClosed has released everything.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateProxyBound:
		return "proxy_bound"
	case StateBrowserAttached:
		return "browser_attached"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds everything a Worker needs.
type Config struct {
	// Policy is the session's classification snapshot.
	Policy *scope.Policy

	// Launcher starts the browser.
	Launcher browser.Launcher

	// Sink receives every exchange the proxy reports.
	Sink func(model.Exchange)

	// User, if set, authenticates forwarded requests.
	User model.User

	// Transport reaches upstream servers. nil uses a direct transport.
	Transport http.RoundTripper

	// CA terminates CONNECT tunnels. nil makes the proxy create its own.
	CA *proxy.CA

	// Language selects the block body locale.
	Language string

	// BootstrapTimeout bounds browser readiness. Zero uses
	// model.DefaultBootstrapTimeout.
	BootstrapTimeout time.Duration

	Logger *slog.Logger
}

// Worker owns one proxy and one browser.
type Worker struct {
	id     int
	cfg    Config
	logger *slog.Logger

	mu           sync.Mutex
	state        State
	proxy        *proxy.Proxy
	browser      browser.Browser
	cancelLaunch context.CancelFunc
	starting     sync.WaitGroup
	closed       chan struct{}
}

// New creates a worker. Nothing is acquired until Start.
func New(id int, cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BootstrapTimeout <= 0 {
		cfg.BootstrapTimeout = model.DefaultBootstrapTimeout
	}
	return &Worker{
		id:     id,
		cfg:    cfg,
		logger: logger.With(slog.Int("worker", id)),
		closed: make(chan struct{}),
	}
}

// ID returns the worker ID.
func (w *Worker) ID() int { return w.id }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// ProxyAddr returns the proxy address, or "" before the proxy is bound.
func (w *Worker) ProxyAddr() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.proxy == nil {
		return ""
	}
	return w.proxy.Addr()
}

// Start binds the proxy, launches the browser through it and turns on scope
// enforcement. Any failure is a *BrowserStartupError and leaves nothing
// acquired.
func (w *Worker) Start(ctx context.Context) (browser.Browser, error) {
	w.mu.Lock()
	switch w.state {
	case StateCreated:
	case StateShuttingDown, StateClosed:
		w.mu.Unlock()
		return nil, w.startupError(ErrWorkerClosed)
	default:
		w.mu.Unlock()
		return nil, ErrWorkerStarted
	}
	if w.cfg.Policy == nil || w.cfg.Launcher == nil {
		w.state = StateClosed
		w.mu.Unlock()
		return nil, w.startupError(errors.New("policy and launcher are required"))
	}

	opts := []proxy.Option{proxy.WithLogger(w.logger), proxy.WithLanguage(w.cfg.Language)}
	if w.cfg.Transport != nil {
		opts = append(opts, proxy.WithTransport(w.cfg.Transport))
	}
	if w.cfg.User != nil {
		opts = append(opts, proxy.WithUser(w.cfg.User))
	}
	if w.cfg.CA != nil {
		opts = append(opts, proxy.WithCA(w.cfg.CA))
	}
	sink := w.cfg.Sink
	if sink == nil {
		sink = func(model.Exchange) {}
	}
	p := proxy.New(w.id, w.cfg.Policy, sink, opts...)
	if err := p.Start(); err != nil {
		w.state = StateClosed
		w.mu.Unlock()
		return nil, w.startupError(fmt.Errorf("bind proxy: %w", err))
	}
	w.proxy = p
	w.state = StateProxyBound

	launchCtx, cancel := context.WithTimeout(ctx, w.cfg.BootstrapTimeout)
	defer cancel()
	w.cancelLaunch = cancel
	w.starting.Add(1)
	defer w.starting.Done()
	w.mu.Unlock()

	w.logger.Debug("launching browser", slog.String("proxy", p.Addr()))
	b, err := w.cfg.Launcher.Launch(launchCtx, browser.ProxyEndpoint{
		Addr:    p.Addr(),
		RootCAs: p.CA().CertPool(),
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelLaunch = nil

	if err == nil && w.state != StateProxyBound {
		// Shutdown raced with the launch.
		if cerr := b.Close(); cerr != nil {
			w.logger.Warn("failed to close browser", slog.Any("error", cerr))
		}
		return nil, w.startupError(ErrWorkerClosed)
	}
	if err != nil {
		switch {
		case w.state != StateProxyBound:
			err = ErrWorkerClosed
		case errors.Is(launchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			err = fmt.Errorf("%w (%s): %w", ErrBootstrapTimeout, w.cfg.BootstrapTimeout, err)
		default:
			err = fmt.Errorf("launch browser: %w", err)
		}
		if serr := p.Stop(); serr != nil {
			w.logger.Warn("failed to stop proxy", slog.Any("error", serr))
		}
		if w.state == StateProxyBound {
			w.state = StateClosed
			close(w.closed)
		}
		return nil, w.startupError(err)
	}

	w.browser = b
	w.state = StateBrowserAttached
	p.EnableScopeChecks()
	w.state = StateRunning
	w.logger.Debug("worker running", slog.String("proxy", p.Addr()))
	return b, nil
}

// Shutdown closes the browser, then the proxy. It is safe to call more than
// once and concurrently with Start; later calls wait for the first one.
// Errors are logged and returned joined.
func (w *Worker) Shutdown() error {
	w.mu.Lock()
	switch w.state {
	case StateShuttingDown:
		w.mu.Unlock()
		<-w.closed
		return nil
	case StateClosed:
		w.mu.Unlock()
		return nil
	}
	w.state = StateShuttingDown
	cancel := w.cancelLaunch
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.starting.Wait()

	w.mu.Lock()
	b, p := w.browser, w.proxy
	w.mu.Unlock()

	var errs []error
	if b != nil {
		if err := b.Close(); err != nil {
			w.logger.Warn("failed to close browser", slog.Any("error", err))
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if p != nil {
		if err := p.Stop(); err != nil {
			w.logger.Warn("failed to stop proxy", slog.Any("error", err))
			errs = append(errs, fmt.Errorf("stop proxy: %w", err))
		}
	}

	w.mu.Lock()
	w.state = StateClosed
	w.mu.Unlock()
	close(w.closed)
	return errors.Join(errs...)
}

func (w *Worker) startupError(err error) error {
	return &BrowserStartupError{WorkerID: w.id, Err: err}
}
