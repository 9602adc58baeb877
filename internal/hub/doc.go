// Package hub fans crawl events out to any number of listeners.
//
// A Hub keeps its listener list behind an atomic pointer and replaces the
// list on every change, so dispatch never holds a lock while calling
// listener code. A panicking listener is logged with its stack and the
// remaining listeners still receive the event.
package hub
