// Package prometheus exposes engine counters through a client_golang
// Collector. Counters are named libauth_*_total; the only histogram is
// libauth_authenticate_latency_seconds.
//
// Register the Collector on your own registry, or mount [Handler] for a
// standalone endpoint.
package prometheus
