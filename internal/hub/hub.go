package hub

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/nao1215/scopecrawl/internal/model"
)

// Listener receives crawl events. Calls for one session are sequential:
// OnStarted first, then every OnFound, then OnStopped.
//
// OnFound runs on the proxy goroutine that observed the exchange, which
// blocks until the callback returns. A callback must therefore not wait for
// the crawl to end: calling session.Session.Stop from it deadlocks, while
// RequestStop returns at once.
type Listener interface {
	OnStarted()
	OnFound(ex model.Exchange)
	OnStopped()
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are skipped.
// Register it by pointer so it can be removed again.
type ListenerFuncs struct {
	Started func()
	Found   func(ex model.Exchange)
	Stopped func()
}

// OnStarted implements Listener.
func (f *ListenerFuncs) OnStarted() {
	if f.Started != nil {
		f.Started()
	}
}

// OnFound implements Listener.
func (f *ListenerFuncs) OnFound(ex model.Exchange) {
	if f.Found != nil {
		f.Found(ex)
	}
}

// OnStopped implements Listener.
func (f *ListenerFuncs) OnStopped() {
	if f.Stopped != nil {
		f.Stopped()
	}
}

// Hub delivers every event to every registered listener. Listeners may be
// added or removed at any time, including from inside a callback; a
// dispatch in progress keeps using the list it started with.
type Hub struct {
	logger    *slog.Logger
	mu        sync.Mutex
	listeners atomic.Pointer[[]Listener]
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger used to report listener panics.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// New creates an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	h.listeners.Store(&[]Listener{})
	return h
}

// Add registers l. Adding the same listener twice delivers events to it twice.
// l must be comparable (a pointer, typically).
func (h *Hub) Add(l Listener) {
	if l == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	current := *h.listeners.Load()
	next := make([]Listener, len(current), len(current)+1)
	copy(next, current)
	next = append(next, l)
	h.listeners.Store(&next)
}

// Remove unregisters the first registration of l. It reports whether l was found.
func (h *Hub) Remove(l Listener) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	current := *h.listeners.Load()
	for i, registered := range current {
		if registered == l {
			next := make([]Listener, 0, len(current)-1)
			next = append(next, current[:i]...)
			next = append(next, current[i+1:]...)
			h.listeners.Store(&next)
			return true
		}
	}
	return false
}

// Len returns the number of registered listeners.
func (h *Hub) Len() int {
	return len(*h.listeners.Load())
}

// Started notifies every listener that a crawl started.
func (h *Hub) Started() {
	h.dispatch("started", Listener.OnStarted)
}

// Found notifies every listener about an exchange.
func (h *Hub) Found(ex model.Exchange) {
	h.dispatch("found", func(l Listener) { l.OnFound(ex) })
}

// Stopped notifies every listener that a crawl stopped.
func (h *Hub) Stopped() {
	h.dispatch("stopped", Listener.OnStopped)
}

func (h *Hub) dispatch(event string, call func(Listener)) {
	for _, l := range *h.listeners.Load() {
		h.safeCall(event, l, call)
	}
}

// safeCall isolates one listener so a panic cannot stop delivery to the rest.
func (h *Hub) safeCall(event string, l Listener, call func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("crawl listener panicked",
				slog.String("event", event),
				slog.String("listener", fmt.Sprintf("%T", l)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	call(l)
}
