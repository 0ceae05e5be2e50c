// Package vclock implements vector clocks for causal versioning.
//
// A vector clock maps node IDs to monotonically increasing counters.
// Each component may only be incremented by the node it names, which
// preserves causality: comparing two clocks determines whether one
// version descends from the other or whether they were written
// concurrently and need conflict resolution.
package vclock
