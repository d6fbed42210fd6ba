// Package metric provides Prometheus metrics for jetconf.
//
//   - prometheus.go: metric interfaces, the Registry and its HTTP handler
//   - collector.go: build information collector
//
// Metrics include:
//
//   - Connection gauges and counters
//   - Per-method request counters and handler latency histograms
//   - Pending request gauge and discard counters
//
// Metrics are exposed at /metrics in Prometheus format on a separate,
// plain HTTP listener.
package metric
