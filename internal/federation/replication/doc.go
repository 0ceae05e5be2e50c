// Package replication implements the multi-master replicated store.
//
// Every record carries a vector clock, the last writer's identity and
// timestamp, and a content checksum. Local writes tick the owning
// node's clock component; remote records arrive through Merge, where
// causal dominance decides outright and concurrent versions are
// resolved by the configured strategy (last-write-wins, highest-node
// or merge-union for set-valued payloads).
//
// Deletion is logical: tombstones propagate and merge like any other
// write and are physically collected after the retention window.
// Records failing their checksum are quarantined, logged and excluded
// from the converged state. All records persist through
// storage.KVEngine and are reloaded on start.
//
//   - record.go: the Record type and checksumming
//   - strategy.go: conflict resolution strategies
//   - store.go: the store itself (put/get/delete/merge/digest)
package replication
