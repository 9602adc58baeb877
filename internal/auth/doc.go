// Package auth enables authentication for crawls run as a user.
//
// A Registry holds the authentication handlers in registration order. The
// first handler that accepts a user owns the crawl and is disabled again
// exactly once when the crawl ends.
package auth
