// Package fedserver assembles the federation node: storage engine,
// discovery service, coordinator, consensus group, replicated store,
// gossip mesh and the HTTP transport, wired together behind one
// lifecycle.
//
// Layout:
//
//   - node.go: assembly, lifecycle, replicated and strong KV surface
//   - loops.go: discovery feed consumer, peer heartbeats, tombstone GC
//   - admin.go: admin endpoints, /health and /metrics
//   - reload.go: config file hot reload
package fedserver
