// Package worker binds one interception proxy to one driven browser.
//
// A Worker starts its proxy in bootstrap mode, launches a browser routed
// through it, and switches the proxy to scope enforcement once the browser
// is ready. Shutdown releases the browser first and the proxy last.
package worker
