// Package main provides the entry point for the scopecrawl CLI.
//
// scopecrawl drives browsers through per-browser intercepting proxies and
// classifies every request against the crawl's scope.
//
// Usage:
//
//	scopecrawl crawl https://app.example.com/
//	scopecrawl history --list
//
// See --help for all available options.
package main

func main() {
	Execute()
}
