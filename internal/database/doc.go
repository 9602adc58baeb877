// Package database provides SQLite-based storage for crawl results.
//
// The CrawlDB stores:
//   - Crawl sessions with their final state
//   - The history of every intercepted exchange
//   - A hierarchical site map of the in-scope resources
//
// SQLite (via modernc.org/sqlite) keeps the store in a single CGO-free file.
// WAL mode lets report commands read while a crawl is writing.
//
// Recorder connects the store to a crawl: it is a hub listener that writes
// each found exchange as it arrives.
package database
