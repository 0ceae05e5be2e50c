// Package transport carries federation RPCs between nodes as JSON
// over HTTP.
//
// The server side exposes one endpoint per RPC family:
//
//	POST /v1/raft/vote    consensus RequestVote
//	POST /v1/raft/append  consensus AppendEntries
//	POST /v1/heartbeat    coordinator heartbeat with load score
//	POST /v1/gossip       gossip messages (PUSH, PULL, PUSH_PULL, PING)
//	POST /v1/sync         anti-entropy digest exchange (SYNC)
//
// The client side implements consensus.Transport and gossip.Transport
// over a shared http.Client with bounded per-call timeouts and
// exponential backoff retries for idempotent calls.
//
// When a cluster key is configured both sides seal request and
// response bodies with an AEAD bound to the sender's node ID; a
// payload that fails to unseal is rejected with MM-NET-4010 before
// any handler runs.
package transport
