package session

import (
	"context"

	"github.com/nao1215/scopecrawl/internal/hub"
	"github.com/nao1215/scopecrawl/internal/model"
)

// Service exposes one crawl at a time through start, stop, status and
// subscribe operations.
type Service struct {
	session *Session
}

// NewService creates a service backed by a new Session.
func NewService(deps Deps) *Service {
	return &Service{session: New(deps)}
}

// Start starts a crawl and returns its ID.
func (svc *Service) Start(ctx context.Context, target *model.Target, mode model.Mode) (string, error) {
	if err := svc.session.Start(ctx, target, mode); err != nil {
		return "", err
	}
	return svc.session.Status().ID, nil
}

// Stop stops the active crawl, if any, and waits for its teardown. Listener
// callbacks must use RequestStop instead.
func (svc *Service) Stop() { svc.session.Stop() }

// RequestStop stops the active crawl, if any, without waiting.
func (svc *Service) RequestStop() { svc.session.RequestStop() }

// Status returns the active crawl's status. Without an active crawl the
// state is StateIdle; Result holds the outcome of the last one.
func (svc *Service) Status() Status {
	st := svc.session.Status()
	if !st.State.Active() {
		st.State = StateIdle
	}
	return st
}

// Result returns the status of the last crawl, including its final state.
func (svc *Service) Result() Status { return svc.session.Status() }

// Subscribe registers l and returns a function that unregisters it.
func (svc *Service) Subscribe(l hub.Listener) (unsubscribe func()) {
	svc.session.AddListener(l)
	return func() { svc.session.RemoveListener(l) }
}

// Run crawls target until the crawl ends or ctx is cancelled, and returns
// the final status.
func (svc *Service) Run(ctx context.Context, target *model.Target, mode model.Mode) (Status, error) {
	if err := svc.session.Start(ctx, target, mode); err != nil {
		return Status{}, err
	}

	finished := make(chan error, 1)
	go func() { finished <- svc.session.Wait() }()

	select {
	case err := <-finished:
		return svc.session.Status(), err
	case <-ctx.Done():
		svc.session.Stop()
		return svc.session.Status(), <-finished
	}
}
