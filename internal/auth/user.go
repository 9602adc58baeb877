package auth

import (
	"errors"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/nao1215/scopecrawl/internal/model"
)

// ErrInvalidCookie is returned for a cookie string that cannot be parsed.
var ErrInvalidCookie = errors.New("invalid cookie")

// CredentialUser is a user whose session is carried by cookies and headers
// obtained out of band, e.g. copied from a logged-in browser.
type CredentialUser struct {
	name    string
	context model.Context
	cookies []*http.Cookie
	headers map[string]string
}

// NewCredentialUser creates a user bound to ctx. cookie uses the Cookie
// header syntax ("a=1; b=2").
func NewCredentialUser(name string, ctx model.Context, cookie string, headers map[string]string) (*CredentialUser, error) {
	if name == "" {
		return nil, errors.New("user name is required")
	}
	u := &CredentialUser{name: name, context: ctx, headers: maps.Clone(headers)}
	if strings.TrimSpace(cookie) != "" {
		cookies, err := http.ParseCookie(cookie)
		if err != nil {
			return nil, errors.Join(ErrInvalidCookie, err)
		}
		u.cookies = cookies
	}
	return u, nil
}

// Name implements model.User.
func (u *CredentialUser) Name() string { return u.name }

// Context implements model.User.
func (u *CredentialUser) Context() model.Context { return u.context }

// HasCredentials reports whether the user carries any cookie or header.
func (u *CredentialUser) HasCredentials() bool {
	return len(u.cookies) > 0 || len(u.headers) > 0
}

// ApplyCredentials sets the user's headers and merges its cookies into the
// request's Cookie header, replacing browser cookies of the same name.
func (u *CredentialUser) ApplyCredentials(h http.Header) {
	for _, k := range slices.Sorted(maps.Keys(u.headers)) {
		h.Set(k, u.headers[k])
	}
	if len(u.cookies) == 0 {
		return
	}

	own := make(map[string]bool, len(u.cookies))
	parts := make([]string, 0, len(u.cookies))
	for _, c := range u.cookies {
		own[c.Name] = true
		parts = append(parts, c.Name+"="+c.Value)
	}
	for _, line := range h.Values("Cookie") {
		existing, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		for _, c := range existing {
			if !own[c.Name] {
				parts = append(parts, c.Name+"="+c.Value)
			}
		}
	}
	h.Set("Cookie", strings.Join(parts, "; "))
}
