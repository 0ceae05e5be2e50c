// Package seal provides authenticated sealing of inter-node payloads.
//
// When a cluster key is configured, every federation RPC payload is
// sealed with an AEAD cipher before leaving the node. A peer that does
// not hold the cluster key cannot produce a valid sealed payload, which
// is how a node verifies a peer's declared identity. The cipher is
// chosen by hardware capability: AES-GCM where AES instructions are
// available, ChaCha20-Poly1305 otherwise.
package seal
