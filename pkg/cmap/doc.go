// Package cmap provides a concurrent-safe sharded map.
//
// It reduces lock contention by splitting the key space over multiple
// independently locked shards. Used for the replication record table
// and the gossip seen-message cache, which are read and written from
// RPC handlers and background loops concurrently.
package cmap
