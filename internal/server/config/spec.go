package config

import "time"

// ServerConfig is the root configuration for memmesh-server.
type ServerConfig struct {
	Server     ServerSection     `koanf:"server"`
	Storage    StorageSection    `koanf:"storage"`
	Security   SecuritySection   `koanf:"security"`
	Federation FederationSection `koanf:"federation"`
	Log        LogSection        `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	// RPCAddr is the bind address for the inter-node RPC and admin
	// HTTP server (e.g., "192.168.1.10:7450").
	RPCAddr string `koanf:"rpc_addr"`

	// AdvertiseAddr is the address peers should use to reach this
	// node. Defaults to RPCAddr when empty.
	AdvertiseAddr string `koanf:"advertise_addr"`
}

// StorageSection configures storage behavior.
type StorageSection struct {
	// Engine selects the KV engine ("badger", "memory").
	Engine string `koanf:"engine"`

	// DataDir is the directory for persisted consensus state and
	// replicated records.
	DataDir string `koanf:"data_dir"`

	// GCInterval is the Badger value-log GC interval.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// SecuritySection configures security settings.
type SecuritySection struct {
	// ClusterKey is the shared key for sealing inter-node RPC
	// payloads (format: "mmck_" + 64 hex chars). Empty disables
	// sealing.
	ClusterKey string `koanf:"cluster_key"`
}

// FederationSection configures the federation core.
type FederationSection struct {
	// NodeID is the unique identifier for this node.
	// If empty, an ID of the form "mmnode-<ulid>" is generated.
	NodeID string `koanf:"node_id"`

	// Capability is an opaque tag describing what this node offers
	// (format: "mmct_" prefixed when it carries trust material).
	Capability string `koanf:"capability"`

	// ElectionTimeoutMin/Max bound the randomized election timeout.
	ElectionTimeoutMin time.Duration `koanf:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `koanf:"election_timeout_max"`

	// HeartbeatInterval is the leader AppendEntries heartbeat period
	// and the coordinator heartbeat send period.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`

	// GossipFanout is the number of random peers each gossip tick
	// forwards to.
	GossipFanout int `koanf:"gossip_fanout"`

	// GossipInterval is the gossip tick period.
	GossipInterval time.Duration `koanf:"gossip_interval"`

	// GossipMaxTTL is the initial time-to-live of gossip messages.
	GossipMaxTTL int `koanf:"gossip_max_ttl"`

	// GossipForwardRate bounds re-forwarded messages per second.
	GossipForwardRate float64 `koanf:"gossip_forward_rate"`

	// AntiEntropyInterval is the digest-exchange reconciliation period.
	AntiEntropyInterval time.Duration `koanf:"anti_entropy_interval"`

	// PeerTimeout removes unresponsive peers from the gossip fanout
	// pool.
	PeerTimeout time.Duration `koanf:"peer_timeout"`

	// ConflictStrategy resolves concurrent writes: "lww",
	// "highest_node" or "merge_union".
	ConflictStrategy string `koanf:"conflict_strategy"`

	// TombstoneRetention is how long deleted-record tombstones are
	// kept before garbage collection.
	TombstoneRetention time.Duration `koanf:"tombstone_retention"`

	Health    HealthSection    `koanf:"health"`
	Discovery DiscoverySection `koanf:"discovery"`
}

// HealthSection configures coordinator health transitions.
type HealthSection struct {
	// DegradedFailures is the consecutive heartbeat failures that
	// move a node HEALTHY -> DEGRADED.
	DegradedFailures int `koanf:"degraded_failures"`

	// UnhealthyFailures is the consecutive failures that move a node
	// DEGRADED -> UNHEALTHY.
	UnhealthyFailures int `koanf:"unhealthy_failures"`

	// DeadTimeout is how long a node may stay UNHEALTHY without a
	// successful heartbeat before it is marked DEAD.
	DeadTimeout time.Duration `koanf:"dead_timeout"`

	// RecoverySuccesses is the consecutive successful heartbeats
	// needed to step back toward HEALTHY.
	RecoverySuccesses int `koanf:"recovery_successes"`

	// TombstoneRetention is how long DEAD nodes are kept for audit
	// before being purged.
	TombstoneRetention time.Duration `koanf:"tombstone_retention"`
}

// DiscoverySection configures the discovery service.
type DiscoverySection struct {
	// BootstrapPeers is the static seed list ("host:port").
	BootstrapPeers []string `koanf:"bootstrap_peers"`

	// DNSNames are names resolved for peer addresses.
	DNSNames []string `koanf:"dns_names"`

	// GossipBindAddr/Port configure the memberlist LAN gossip source.
	// Port 0 disables the source.
	GossipBindAddr string `koanf:"gossip_bind_addr"`
	GossipBindPort int    `koanf:"gossip_bind_port"`

	// BroadcastPort is the UDP local-broadcast probe port.
	// 0 disables the source.
	BroadcastPort int `koanf:"broadcast_port"`

	// MaxNodes caps the discovered-node set.
	MaxNodes int `koanf:"max_nodes"`

	// CycleInterval is the periodic discovery interval.
	CycleInterval time.Duration `koanf:"cycle_interval"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
