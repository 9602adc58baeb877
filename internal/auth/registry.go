package auth

import (
	"log/slog"
	"sync"

	"github.com/nao1215/scopecrawl/internal/model"
)

// Handler prepares authentication for a user.
type Handler interface {
	// EnableAuthentication reports whether the handler takes care of user.
	EnableAuthentication(user model.User) bool

	// DisableAuthentication undoes EnableAuthentication.
	DisableAuthentication(user model.User)
}

// Registry is an ordered, concurrency-safe list of handlers.
type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers []Handler
}

// NewRegistry creates a registry holding handlers.
func NewRegistry(logger *slog.Logger, handlers ...Handler) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, handlers: append([]Handler(nil), handlers...)}
}

// Register appends h.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Unregister removes h. It reports whether h was registered.
func (r *Registry) Unregister(h Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, registered := range r.handlers {
		if registered == h {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Activation is an enabled authentication. Release disables it; only the
// first call has an effect.
type Activation struct {
	handler Handler
	user    model.User
	once    sync.Once
}

// Handler returns the handler that accepted the user, or nil.
func (a *Activation) Handler() Handler {
	if a == nil {
		return nil
	}
	return a.handler
}

// Release disables the authentication. It is safe on a nil Activation.
func (a *Activation) Release() {
	if a == nil || a.handler == nil {
		return
	}
	a.once.Do(func() {
		a.handler.DisableAuthentication(a.user)
	})
}

// Enable asks each handler in order to authenticate user and stops at the
// first that accepts. A nil user or no accepting handler yields an
// Activation whose Release does nothing.
func (r *Registry) Enable(user model.User) *Activation {
	if user == nil {
		return &Activation{}
	}
	r.mu.RLock()
	handlers := append([]Handler(nil), r.handlers...)
	r.mu.RUnlock()

	for _, h := range handlers {
		if h.EnableAuthentication(user) {
			r.logger.Debug("authentication enabled", slog.String("user", user.Name()))
			return &Activation{handler: h, user: user}
		}
	}
	r.logger.Warn("no authentication handler accepted the user", slog.String("user", user.Name()))
	return &Activation{}
}
