// Package browser defines the driven-browser contract used by crawl workers
// and ships two implementations.
//
// ChromeLauncher drives a real Chrome or Chromium through chromedp, which
// executes the application's JavaScript the way a user's browser would.
// HTTPLauncher is a lightweight HTML-only browser built on net/http; it is
// useful where no Chrome binary is available and in tests.
//
// Both are pointed at a worker's interception proxy when launched, so every
// request they make is observed and classified.
package browser
