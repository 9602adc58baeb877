// Package upstream builds the http.RoundTripper that interception proxies
// use to reach the crawled application.
//
// Traffic goes out directly by default. It can be routed through a SOCKS5
// proxy, or through an embedded Tor daemon managed with tornago when the
// target is only reachable over Tor. Every transport can be wrapped to add
// fixed request headers such as a scanner identification header.
//
// IsOnionHost and ValidOnionHost check onion service names, including the
// v3 checksum, before a crawl is pointed at one.
package upstream
