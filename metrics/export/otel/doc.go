// Package otel publishes engine counters as OpenTelemetry observable
// instruments on a caller-supplied Meter. The latency histogram is exposed
// as cumulative bucket gauges keyed by an "le" attribute.
package otel
