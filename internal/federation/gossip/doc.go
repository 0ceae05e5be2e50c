// Package gossip implements epidemic dissemination of replication
// deltas between federation peers, plus a slower anti-entropy pass
// that reconciles whole-store digests.
//
// Each tick the mesh fans buffered messages out to a few random live
// peers. Receivers deduplicate by content digest, merge the carried
// records into the replication store, and re-forward with a
// decremented TTL, so an update floods the mesh in roughly
// log_fanout(N) rounds. Anti-entropy exchanges per-key checksums with
// one random peer per interval and pulls or pushes only the divergent
// keys, which guarantees convergence even when individual gossip
// messages are lost.
//
// Layout:
//
//   - message.go: wire message kinds, content-digest message IDs
//   - mesh.go: the mesh actor, fanout loop, anti-entropy loop
package gossip
