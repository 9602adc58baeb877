// Package model defines the data shared by every part of a crawl.
//
// A Target describes what to crawl: the start URI, an optional context,
// user or scope definition, and an Options snapshot. TargetBuilder
// validates these before a crawl starts.
//
// An Exchange is one intercepted request with its response and the
// ResourceState it was classified as. Exchanges are what listeners, the
// result database and the reports consume.
//
// The types live in their own package so the proxy, session, database
// and report packages can share them without import cycles.
package model
