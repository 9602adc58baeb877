// Package report renders crawl sessions.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - MarkdownWriter: Markdown with a mermaid chart of the resource states
//   - JSONWriter: Structured JSON output for tool integration
//
// A CrawlReport is built from the stored session and its grouped results.
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
