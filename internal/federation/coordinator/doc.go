// Package coordinator owns the federation membership table.
//
// All cluster-membership state lives behind one mutex-guarded
// Coordinator object; registration, heartbeats, failure reports and
// node selection are its only mutation paths. A background sweep marks
// silent nodes DEAD and purges their tombstones after the retention
// window.
//
//   - coordinator.go: membership, heartbeats, health transitions, sweep
//   - select.go: node selection algorithms and RTT tracking
//
// Health moves forward monotonically (healthy -> degraded -> unhealthy
// -> dead) on failures. Recovery steps back one state at a time and
// requires a configured number of consecutive successful heartbeats; a
// single success never clears degradation.
package coordinator
