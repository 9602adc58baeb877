// Package explorer contains the crawl-exploration contract and the built-in
// engine.
//
// An Engine decides which pages to visit and which actions to perform. It
// is given a scope predicate, a browser provider and limits; it never sees
// the interception proxies behind the browsers. Crawler, the built-in
// engine, walks the application breadth-first: it loads a page, reads the
// resulting DOM and follows the links, frames and GET forms of the enabled
// element types, skipping elements matched by exclusion rules.
package explorer
