package proxy

import "errors"

var (
	// ErrProxyStarted is returned when Start is called twice.
	ErrProxyStarted = errors.New("proxy already started")

	// ErrProxyClosed is returned when Start is called after Stop.
	ErrProxyClosed = errors.New("proxy is closed")
)
