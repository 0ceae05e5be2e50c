// Package domain defines the core federation domain models.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// HealthState is a node's liveness classification.
//
// Transitions move forward monotonically (Healthy -> Degraded ->
// Unhealthy -> Dead) on failures; recovery steps back one state at a
// time and only after enough consecutive successful heartbeats.
type HealthState int

const (
	// Healthy nodes answer heartbeats and are eligible for selection.
	Healthy HealthState = iota

	// Degraded nodes have missed heartbeats but still serve traffic.
	Degraded

	// Unhealthy nodes are excluded from selection but still tracked.
	Unhealthy

	// Dead nodes are retained as tombstones for audit, never selected.
	Dead
)

// String returns the state name.
func (s HealthState) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("health(%d)", int(s))
	}
}

// MarshalJSON encodes the state as its name.
func (s HealthState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *HealthState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "healthy":
		*s = Healthy
	case "degraded":
		*s = Degraded
	case "unhealthy":
		*s = Unhealthy
	case "dead":
		*s = Dead
	default:
		return fmt.Errorf("unknown health state %q", name)
	}
	return nil
}

// Selectable reports whether a node in this state may receive traffic.
func (s HealthState) Selectable() bool {
	return s == Healthy || s == Degraded
}

// NodeDescriptor describes one federation member.
//
// Descriptors are owned exclusively by the coordinator; every mutation
// goes through its registration and heartbeat calls.
type NodeDescriptor struct {
	// ID is the globally unique node identifier.
	ID string `json:"node_id"`

	// Addr is the node's RPC address (host:port).
	Addr string `json:"addr"`

	// Capability is an opaque tag supplied by the tenant layer.
	// The federation core carries it as metadata only.
	Capability string `json:"capability,omitempty"`

	// LastHeartbeat is the time of the last successful heartbeat.
	LastHeartbeat time.Time `json:"last_heartbeat"`

	// LoadScore is the node's reported load in [0.0, 1.0].
	LoadScore float64 `json:"load_score"`

	// Health is the coordinator-assigned health state.
	Health HealthState `json:"health"`
}

// Validate checks descriptor invariants.
func (d *NodeDescriptor) Validate() error {
	if d.ID == "" {
		return ErrNodeIDRequired
	}
	if d.Addr == "" {
		return ErrNodeAddrRequired
	}
	if d.LoadScore < 0 || d.LoadScore > 1 {
		return fmt.Errorf("%w: load score %.3f outside [0,1]", ErrInvalidLoadScore, d.LoadScore)
	}
	return nil
}

// Clone returns a copy of the descriptor.
func (d *NodeDescriptor) Clone() *NodeDescriptor {
	out := *d
	return &out
}
