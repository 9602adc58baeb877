// Package session orchestrates one crawl: it captures the scope policy,
// enables authentication, drives an exploration engine with one browser
// worker per slot, counts and republishes intercepted exchanges, and tears
// everything down when the crawl ends or is stopped.
package session
