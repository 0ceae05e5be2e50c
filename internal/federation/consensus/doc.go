// Package consensus implements the Raft-style consensus group.
//
// One goroutine owns all consensus state; inbound RPCs, proposals and
// peer updates are submitted to it over channels and answered through
// per-request reply channels, so there is no shared-memory mutation.
//
// A follower that misses leader heartbeats for a randomized election
// timeout becomes a candidate, increments its term and requests votes.
// A majority makes it leader; it then replicates proposed commands via
// AppendEntries and commits them in index order once a majority has
// acknowledged, handing each committed entry to the Apply callback.
// Any node observing a higher term immediately steps down.
//
// Durable state (current term, vote, log entries) persists through
// storage.KVEngine and is restored on restart. When a leader loses
// contact with a majority it degrades to read-only: proposals are
// rejected until quorum returns.
//
//   - types.go: roles, log entries and the wire RPC shapes
//   - state.go: durable state persistence
//   - node.go: the consensus actor
package consensus
