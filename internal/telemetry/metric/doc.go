// Package metric provides Prometheus metrics for memmesh.
//
// This package implements metrics collection and exposition:
//
//   - metrics.go: federation metric set and registry
//   - handler.go: the /metrics HTTP handler
//
// Metrics include:
//
//   - Consensus term and role gauges
//   - Membership and health gauges
//   - Gossip send/receive/dedup counters
//   - Merge conflict and quarantine counters
//   - Storage statistics (registered by the Badger engine)
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
