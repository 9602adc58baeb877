package auth

import (
	"log/slog"
	"sync"

	"github.com/nao1215/scopecrawl/internal/model"
)

// CredentialHandler accepts users that carry cookies or headers. The
// credentials themselves are applied by the proxy on every request; the
// handler tracks which users are active.
type CredentialHandler struct {
	logger *slog.Logger
	mu     sync.Mutex
	active map[string]int
}

// NewCredentialHandler creates a CredentialHandler.
func NewCredentialHandler(logger *slog.Logger) *CredentialHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialHandler{logger: logger, active: make(map[string]int)}
}

// EnableAuthentication implements Handler.
func (h *CredentialHandler) EnableAuthentication(user model.User) bool {
	cu, ok := user.(*CredentialUser)
	if !ok || !cu.HasCredentials() {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active[cu.Name()]++
	h.logger.Info("crawling as user", slog.String("user", cu.Name()))
	return true
}

// DisableAuthentication implements Handler.
func (h *CredentialHandler) DisableAuthentication(user model.User) {
	h.mu.Lock()
	defer h.mu.Unlock()
	name := user.Name()
	if h.active[name] <= 1 {
		delete(h.active, name)
		return
	}
	h.active[name]--
}

// Active reports whether user currently has an enabled authentication.
func (h *CredentialHandler) Active(user model.User) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active[user.Name()] > 0
}
