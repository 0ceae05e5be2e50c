// Package storage provides embedded key-value persistence for memmesh.
//
// The federation core persists two kinds of state through the KVEngine
// interface: the consensus group's durable state (current term, vote,
// log entries) and the replication store's records (value, vector
// clock, checksum, tombstone flag). Both must survive process restart.
//
//   - kv.go: the KVEngine interface and configuration
//   - badger.go: Badger-backed implementation with GC and metrics
//   - memory/: map-backed implementation for tests and ephemeral nodes
package storage
