// Package proxy implements the interception proxy that sits between one
// crawling browser and the network.
//
// Each browser worker owns exactly one Proxy bound to an ephemeral port on
// 127.0.0.1. Every request the browser makes is classified with
// scope.Classify. Under the strict policy a non-processed request is answered
// with a synthetic 403 and never leaves the machine; under the flexible
// policy everything is forwarded and off-target traffic is reported as
// third party. The proxy is built on goproxy: CONNECT tunnels are
// intercepted with a per-crawl CA so that full HTTPS URLs can be classified.
//
// Exchanges are reported to the sink passed to New exactly once and in the
// order their requests arrived.
package proxy
