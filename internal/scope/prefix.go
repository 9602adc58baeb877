package scope

import (
	"errors"
	"net/url"
	"strings"
)

// PrefixValidator accepts URLs located under a start URI's path.
type PrefixValidator struct {
	scheme string
	host   string
	port   string
	path   string
}

// NewPrefixValidator normalizes start and returns a validator for its subtree.
func NewPrefixValidator(start *url.URL) (*PrefixValidator, error) {
	if start == nil || start.Scheme == "" || start.Host == "" {
		return nil, errors.New("prefix validator needs an absolute start URI")
	}
	scheme, host, port := normalizeAuthority(start)
	path := start.EscapedPath()
	if path == "" {
		path = "/"
	}
	return &PrefixValidator{scheme: scheme, host: host, port: port, path: path}, nil
}

// Prefix returns the normalized prefix, e.g. "http://a.test/app/".
func (v *PrefixValidator) Prefix() string {
	host := v.host
	if v.port != "" {
		host += ":" + v.port
	}
	return v.scheme + "://" + host + v.path
}

// IsValid reports whether u shares the scheme, host, port and path prefix.
func (v *PrefixValidator) IsValid(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme, host, port := normalizeAuthority(u)
	if scheme != v.scheme || host != v.host || port != v.port {
		return false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return strings.HasPrefix(path, v.path)
}

// normalizeAuthority lowercases scheme and host and drops the scheme's default port.
func normalizeAuthority(u *url.URL) (scheme, host, port string) {
	scheme = strings.ToLower(u.Scheme)
	host = strings.ToLower(u.Hostname())
	port = u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	return scheme, host, port
}
