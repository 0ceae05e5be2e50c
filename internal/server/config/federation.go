package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/memmesh-go/internal/federation/coordinator"
	"github.com/yndnr/memmesh-go/internal/federation/discovery"
	"github.com/yndnr/memmesh-go/internal/federation/gossip"
	"github.com/yndnr/memmesh-go/internal/federation/replication"
	"github.com/yndnr/memmesh-go/internal/storage"
	"github.com/yndnr/memmesh-go/internal/telemetry/metric"
)

// NodeID returns the configured node ID, generating one when empty.
//
// Format: mmnode-<ulid_lowercase>.
func NodeID(cfg *ServerConfig) (string, error) {
	if cfg.Federation.NodeID != "" {
		return cfg.Federation.NodeID, nil
	}

	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate node ID: %w", err)
	}
	return "mmnode-" + strings.ToLower(id.String()), nil
}

// ClusterKeyBytes decodes the "mmck_"-prefixed cluster key into raw
// AEAD key material. Returns nil when sealing is disabled.
func ClusterKeyBytes(cfg *ServerConfig) ([]byte, error) {
	key := cfg.Security.ClusterKey
	if key == "" {
		return nil, nil
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(key, "mmck_"))
	if err != nil {
		return nil, fmt.Errorf("decode cluster key: %w", err)
	}
	return raw, nil
}

// AdvertiseAddr is the address peers use to reach this node.
func AdvertiseAddr(cfg *ServerConfig) string {
	if cfg.Server.AdvertiseAddr != "" {
		return cfg.Server.AdvertiseAddr
	}
	return cfg.Server.RPCAddr
}

// ToKVConfig converts the storage section to a storage engine config.
func ToKVConfig(cfg *ServerConfig) storage.KVConfig {
	kv := storage.KVConfig{
		Engine: cfg.Storage.Engine,
		Dir:    cfg.Storage.DataDir,
		Badger: storage.DefaultBadgerConfig(),
	}
	if cfg.Storage.GCInterval > 0 {
		kv.Badger.GCInterval = cfg.Storage.GCInterval.String()
	}
	return kv
}

// ToCoordinatorConfig converts the health section to a coordinator
// config.
func ToCoordinatorConfig(cfg *ServerConfig, logger *slog.Logger, metrics *metric.Set) coordinator.Config {
	return coordinator.Config{
		DegradedFailures:   cfg.Federation.Health.DegradedFailures,
		UnhealthyFailures:  cfg.Federation.Health.UnhealthyFailures,
		DeadTimeout:        cfg.Federation.Health.DeadTimeout,
		RecoverySuccesses:  cfg.Federation.Health.RecoverySuccesses,
		TombstoneRetention: cfg.Federation.Health.TombstoneRetention,
		Logger:             logger,
		Metrics:            metrics,
	}
}

// ToDiscoveryConfig converts the discovery section to a discovery
// service config.
func ToDiscoveryConfig(cfg *ServerConfig, nodeID string, logger *slog.Logger, metrics *metric.Set) discovery.Config {
	return discovery.Config{
		LocalID:       nodeID,
		MaxNodes:      cfg.Federation.Discovery.MaxNodes,
		CycleInterval: cfg.Federation.Discovery.CycleInterval,
		Logger:        logger,
		Metrics:       metrics,
	}
}

// BuildDiscoverySources constructs the enabled discovery sources in
// priority order. The memberlist source joins the LAN mesh on
// creation; the discovery service closes it again on Stop.
func BuildDiscoverySources(cfg *ServerConfig, nodeID string, logger *slog.Logger) ([]discovery.Source, error) {
	d := cfg.Federation.Discovery
	var sources []discovery.Source

	if len(d.BootstrapPeers) > 0 {
		sources = append(sources, discovery.NewBootstrapSource(d.BootstrapPeers))
	}
	if len(d.DNSNames) > 0 {
		sources = append(sources, discovery.NewDNSSource(d.DNSNames, rpcPort(cfg.Server.RPCAddr), logger))
	}
	if d.GossipBindPort > 0 {
		src, err := discovery.NewGossipSource(discovery.GossipSourceConfig{
			NodeID:     nodeID,
			BindAddr:   d.GossipBindAddr,
			BindPort:   d.GossipBindPort,
			RPCAddr:    AdvertiseAddr(cfg),
			Capability: cfg.Federation.Capability,
			SeedNodes:  d.BootstrapPeers,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("gossip discovery source: %w", err)
		}
		sources = append(sources, src)
	}
	if d.BroadcastPort > 0 {
		sources = append(sources, discovery.NewBroadcastSource(nodeID, d.BroadcastPort, logger))
	}

	return sources, nil
}

// ToReplicationConfig converts the federation section to a
// replication store config.
func ToReplicationConfig(cfg *ServerConfig, nodeID string, engine storage.KVEngine, logger *slog.Logger, metrics *metric.Set) replication.Config {
	return replication.Config{
		LocalID:            nodeID,
		Strategy:           cfg.Federation.ConflictStrategy,
		TombstoneRetention: cfg.Federation.TombstoneRetention,
		Engine:             engine,
		Logger:             logger,
		Metrics:            metrics,
	}
}

// ToGossipConfig converts the federation section to a gossip mesh
// config. The transport is supplied by the caller.
func ToGossipConfig(cfg *ServerConfig, nodeID string, store *replication.Store, transport gossip.Transport, logger *slog.Logger, metrics *metric.Set) gossip.Config {
	return gossip.Config{
		LocalID:             nodeID,
		Fanout:              cfg.Federation.GossipFanout,
		Interval:            cfg.Federation.GossipInterval,
		MaxTTL:              cfg.Federation.GossipMaxTTL,
		ForwardRate:         cfg.Federation.GossipForwardRate,
		AntiEntropyInterval: cfg.Federation.AntiEntropyInterval,
		PeerTimeout:         cfg.Federation.PeerTimeout,
		Store:               store,
		Transport:           transport,
		Logger:              logger,
		Metrics:             metrics,
	}
}

// rpcPort extracts the port from an RPC bind address for DNS host
// lookups that resolve bare IPs.
func rpcPort(addr string) int {
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 {
		return 0
	}
	port := 0
	fmt.Sscanf(addr[idx+1:], "%d", &port)
	return port
}
