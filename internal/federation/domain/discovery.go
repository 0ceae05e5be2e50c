// Package domain defines the core federation domain models.
package domain

import (
	"fmt"
	"time"
)

// DiscoverySource identifies how a peer candidate was found.
//
// Sources are ranked; when the same node ID is reported by several
// sources, the record from the highest-ranked source is kept.
type DiscoverySource int

const (
	// SourceBootstrap is a statically configured seed peer.
	SourceBootstrap DiscoverySource = iota

	// SourceDNS is a peer resolved from configured DNS names.
	SourceDNS

	// SourceGossip is a peer learned through gossip membership.
	SourceGossip

	// SourceBroadcast is a peer answering a local network broadcast.
	SourceBroadcast
)

// String returns the source name.
func (s DiscoverySource) String() string {
	switch s {
	case SourceBootstrap:
		return "bootstrap"
	case SourceDNS:
		return "dns"
	case SourceGossip:
		return "gossip"
	case SourceBroadcast:
		return "local_broadcast"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Priority returns the source rank; lower is stronger.
func (s DiscoverySource) Priority() int {
	return int(s)
}

// DiscoveryRecord is one discovered peer candidate.
type DiscoveryRecord struct {
	// NodeID is the peer's declared node identifier.
	NodeID string `json:"node_id"`

	// Addr is the peer's RPC address.
	Addr string `json:"addr"`

	// Source is the discovery method that produced this record.
	Source DiscoverySource `json:"source"`

	// Capability is the peer's opaque capability tag, when known.
	Capability string `json:"capability,omitempty"`

	// DiscoveredAt is when the record was produced.
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Supersedes reports whether this record should replace other for the
// same node ID: stronger sources win, newer records win within a source.
func (r DiscoveryRecord) Supersedes(other DiscoveryRecord) bool {
	if r.Source.Priority() != other.Source.Priority() {
		return r.Source.Priority() < other.Source.Priority()
	}
	return r.DiscoveredAt.After(other.DiscoveredAt)
}
