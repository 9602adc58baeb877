package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/scopecrawl/internal/auth"
	"github.com/nao1215/scopecrawl/internal/browser"
	"github.com/nao1215/scopecrawl/internal/explorer"
	"github.com/nao1215/scopecrawl/internal/hub"
	"github.com/nao1215/scopecrawl/internal/model"
	"github.com/nao1215/scopecrawl/internal/proxy"
	"github.com/nao1215/scopecrawl/internal/scope"
	"github.com/nao1215/scopecrawl/internal/worker"
)

// Deps are the collaborators of a Session. Only Launcher is required.
type Deps struct {
	// Launcher starts the browsers.
	Launcher browser.Launcher

	// Engine explores the application. nil uses explorer.NewCrawler.
	Engine explorer.Engine

	// Hub receives the crawl events. nil creates a private hub.
	Hub *hub.Hub

	// Auth enables authentication for the target's user. nil disables it.
	Auth *auth.Registry

	// Transport reaches upstream servers. nil connects directly.
	Transport http.RoundTripper

	// Exclusions are global exclude-URL regexes added to every policy.
	Exclusions []string

	// Scope is the global scope consulted in protect mode when the target
	// has no scope of its own.
	Scope model.ScopeDefinition

	// Metrics, if set, are updated while crawling.
	Metrics *Metrics

	Logger *slog.Logger
}

// Status is a snapshot of a session.
type Status struct {
	ID          string
	DisplayName string
	State       State

	StartedAt  time.Time
	FinishedAt time.Time

	// Counts holds the number of exchanges per resource state.
	Counts map[model.ResourceState]int
	Total  int

	WorkersStarted int
	WorkersFailed  int

	// Err is the reason of a failed crawl.
	Err error
}

// Session runs one crawl at a time. A finished session can be started again.
type Session struct {
	deps   Deps
	hub    *hub.Hub
	engine explorer.Engine
	auth   *auth.Registry
	logger *slog.Logger

	// foundMu serializes found events so listeners see one call at a time.
	foundMu sync.Mutex

	mu      sync.Mutex
	status  Status
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an idle session.
func New(deps Deps) *Session {
	s := &Session{
		deps:   deps,
		hub:    deps.Hub,
		engine: deps.Engine,
		auth:   deps.Auth,
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.hub == nil {
		s.hub = hub.New(hub.WithLogger(s.logger))
	}
	if s.engine == nil {
		s.engine = explorer.NewCrawler(explorer.WithLogger(s.logger))
	}
	if s.auth == nil {
		s.auth = auth.NewRegistry(s.logger)
	}
	s.status.Counts = make(map[model.ResourceState]int)
	return s
}

// AddListener registers l for the events of every crawl of this session.
func (s *Session) AddListener(l hub.Listener) { s.hub.Add(l) }

// RemoveListener unregisters l.
func (s *Session) RemoveListener(l hub.Listener) bool { return s.hub.Remove(l) }

// Start validates the request and starts crawling target in the background.
// Validation and build errors are returned synchronously; the outcome of the
// crawl itself is reported by Wait and Status.
func (s *Session) Start(ctx context.Context, target *model.Target, mode model.Mode) error {
	if target == nil {
		return ErrNilTarget
	}
	if s.deps.Launcher == nil {
		return ErrNoLauncher
	}
	if err := s.checkMode(target, mode); err != nil {
		return err
	}

	s.mu.Lock()
	if s.status.State.Active() {
		s.mu.Unlock()
		return ErrScanInProgress
	}

	policy, err := scope.NewPolicy(target, s.deps.Exclusions)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	ca, err := proxy.NewCA()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create interception CA: %w", err)
	}

	opts := target.Options()
	id := uuid.NewString()
	logger := s.logger.With(slog.String("session", id))
	displayName := DisplayName(target)
	s.status = Status{
		ID:          id,
		DisplayName: displayName,
		State:       StateStarting,
		StartedAt:   time.Now(),
		Counts:      make(map[model.ResourceState]int),
	}
	s.stopped = false

	activation := s.auth.Enable(target.User())

	workers := make([]*worker.Worker, opts.NumberOfBrowsers)
	for i := range workers {
		workers[i] = worker.New(i, worker.Config{
			Policy:           policy,
			Launcher:         s.deps.Launcher,
			Sink:             s.found,
			User:             target.User(),
			Transport:        s.deps.Transport,
			CA:               ca,
			Language:         opts.Language,
			BootstrapTimeout: opts.BootstrapTimeout,
			Logger:           logger,
		})
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	logger.Info("crawl started",
		slog.String("target", displayName),
		slog.Int("browsers", len(workers)),
		slog.String("scope_check", opts.ScopeCheckPolicy.String()),
	)
	s.hub.Started()

	s.mu.Lock()
	if s.status.State == StateStarting {
		s.status.State = StateRunning
	}
	s.mu.Unlock()

	cfg := explorer.Config{
		StartURL: target.StartURI().String(),
		InScope:  policy.InScope,
		Browsers: len(workers),
		Provider: s.provider(workers, logger),
		Release: func(slot int) {
			if slot >= 0 && slot < len(workers) {
				s.shutdownWorker(workers[slot], logger)
			}
		},
		Limits: explorer.LimitsFromOptions(opts),
	}
	go s.run(runCtx, cancel, done, cfg, workers, activation, logger)
	return nil
}

func (s *Session) checkMode(target *model.Target, mode model.Mode) error {
	switch mode {
	case model.ModeSafe:
		return fmt.Errorf("%w: crawling is disabled in %s mode", ErrModeViolation, mode)
	case model.ModeProtect:
		def := target.Scope()
		if def == nil {
			def = s.deps.Scope
		}
		if def == nil || !def.IsInScope(target.StartURI().String()) {
			return fmt.Errorf("%w: %s is not in scope in %s mode", ErrModeViolation, target.StartURI(), mode)
		}
	}
	return nil
}

// provider starts the worker of a slot on the engine's behalf.
func (s *Session) provider(workers []*worker.Worker, logger *slog.Logger) explorer.Provider {
	return func(ctx context.Context, slot int) (browser.Browser, error) {
		if slot < 0 || slot >= len(workers) {
			return nil, fmt.Errorf("browser slot %d out of range", slot)
		}
		b, err := workers[slot].Start(ctx)
		s.mu.Lock()
		if err != nil {
			s.status.WorkersFailed++
		} else {
			s.status.WorkersStarted++
		}
		s.mu.Unlock()

		if err != nil {
			logger.Warn("browser worker failed to start", slog.Int("worker", slot), slog.Any("error", err))
			if s.deps.Metrics != nil {
				s.deps.Metrics.WorkerFailures.Inc()
			}
			return nil, err
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.WorkersRunning.Inc()
		}
		return b, nil
	}
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, cfg explorer.Config,
	workers []*worker.Worker, activation *auth.Activation, logger *slog.Logger) {
	defer close(done)
	defer cancel()

	engineErr := s.engine.Run(ctx, cfg)

	s.mu.Lock()
	if s.status.State == StateRunning {
		s.status.State = StateStopping
	}
	s.mu.Unlock()

	s.teardown(workers, logger)
	activation.Release()

	s.mu.Lock()
	switch {
	case s.status.WorkersFailed == len(workers) && !s.stopped:
		s.status.State = StateFailed
		s.status.Err = ErrAllWorkersFailed
	case engineErr != nil && !errors.Is(engineErr, context.Canceled) && !errors.Is(engineErr, context.DeadlineExceeded):
		s.status.State = StateFailed
		s.status.Err = engineErr
	default:
		s.status.State = StateCompleted
	}
	s.status.FinishedAt = time.Now()
	final := s.snapshot()
	s.mu.Unlock()

	if s.deps.Metrics != nil {
		s.deps.Metrics.Sessions.WithLabelValues(final.State.String()).Inc()
	}
	attrs := []any{
		slog.String("state", final.State.String()),
		slog.Int("exchanges", final.Total),
		slog.Duration("elapsed", final.FinishedAt.Sub(final.StartedAt)),
	}
	if final.Err != nil {
		attrs = append(attrs, slog.Any("error", final.Err))
	}
	logger.Info("crawl finished", attrs...)

	s.hub.Stopped()
}

// teardown shuts every worker down in parallel. Errors are logged only.
func (s *Session) teardown(workers []*worker.Worker, logger *slog.Logger) {
	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			s.shutdownWorker(w, logger)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Session) shutdownWorker(w *worker.Worker, logger *slog.Logger) {
	wasRunning := w.State() == worker.StateRunning
	if err := w.Shutdown(); err != nil {
		logger.Warn("worker shutdown failed", slog.Int("worker", w.ID()), slog.Any("error", err))
	}
	if wasRunning && s.deps.Metrics != nil {
		s.deps.Metrics.WorkersRunning.Dec()
	}
}

// found is the sink of every worker proxy.
func (s *Session) found(ex model.Exchange) {
	s.foundMu.Lock()
	defer s.foundMu.Unlock()

	s.mu.Lock()
	s.status.Counts[ex.State]++
	s.status.Total++
	s.mu.Unlock()

	if s.deps.Metrics != nil {
		s.deps.Metrics.Exchanges.WithLabelValues(ex.State.String()).Inc()
	}
	s.hub.Found(ex)
}

// Stop cancels the crawl and blocks until every worker is closed and the
// stopped event was emitted. It does nothing when no crawl is active.
//
// Stop must not be called from a listener callback: teardown waits for the
// proxy handler that is delivering the event. Use RequestStop there.
func (s *Session) Stop() {
	if done := s.RequestStop(); done != nil {
		<-done
	}
}

// RequestStop cancels the crawl without waiting for its teardown and returns
// a channel closed once the crawl has finished, or nil when no crawl is
// active.
func (s *Session) RequestStop() <-chan struct{} {
	s.mu.Lock()
	if !s.status.State.Active() {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.status.State = StateStopping
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	return done
}

// Wait blocks until the current crawl finished and returns its error.
func (s *Session) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Err
}

// Status returns a snapshot of the current or last crawl.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Status {
	st := s.status
	st.Counts = maps.Clone(s.status.Counts)
	return st
}
