package config

import "time"

// Default configuration values.
const (
	DefaultRPCAddr = "127.0.0.1:7450"

	DefaultStorageEngine = "badger"
	DefaultDataDir       = "/var/lib/memmesh-server/data"
	DefaultGCInterval    = 10 * time.Minute

	DefaultElectionTimeoutMin  = 150 * time.Millisecond
	DefaultElectionTimeoutMax  = 300 * time.Millisecond
	DefaultHeartbeatInterval   = 50 * time.Millisecond
	DefaultGossipFanout        = 3
	DefaultGossipInterval      = 200 * time.Millisecond
	DefaultGossipMaxTTL        = 5
	DefaultGossipForwardRate   = 500.0
	DefaultAntiEntropyInterval = 10 * time.Second
	DefaultPeerTimeout         = 30 * time.Second
	DefaultConflictStrategy    = "lww"
	DefaultTombstoneRetention  = time.Hour

	DefaultDegradedFailures       = 3
	DefaultUnhealthyFailures      = 6
	DefaultDeadTimeout            = 2 * time.Minute
	DefaultRecoverySuccesses      = 3
	DefaultNodeTombstoneRetention = 24 * time.Hour

	DefaultDiscoveryMaxNodes      = 256
	DefaultDiscoveryCycleInterval = 30 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			RPCAddr: DefaultRPCAddr,
		},
		Storage: StorageSection{
			Engine:     DefaultStorageEngine,
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
		},
		Federation: FederationSection{
			ElectionTimeoutMin:  DefaultElectionTimeoutMin,
			ElectionTimeoutMax:  DefaultElectionTimeoutMax,
			HeartbeatInterval:   DefaultHeartbeatInterval,
			GossipFanout:        DefaultGossipFanout,
			GossipInterval:      DefaultGossipInterval,
			GossipMaxTTL:        DefaultGossipMaxTTL,
			GossipForwardRate:   DefaultGossipForwardRate,
			AntiEntropyInterval: DefaultAntiEntropyInterval,
			PeerTimeout:         DefaultPeerTimeout,
			ConflictStrategy:    DefaultConflictStrategy,
			TombstoneRetention:  DefaultTombstoneRetention,
			Health: HealthSection{
				DegradedFailures:   DefaultDegradedFailures,
				UnhealthyFailures:  DefaultUnhealthyFailures,
				DeadTimeout:        DefaultDeadTimeout,
				RecoverySuccesses:  DefaultRecoverySuccesses,
				TombstoneRetention: DefaultNodeTombstoneRetention,
			},
			Discovery: DiscoverySection{
				MaxNodes:      DefaultDiscoveryMaxNodes,
				CycleInterval: DefaultDiscoveryCycleInterval,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
