package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	if err := verifyFederation(&cfg.Federation); err != nil {
		return err
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if cfg.RPCAddr == "" {
		return errors.New("server.rpc_addr is required")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Engine {
	case "badger":
		if cfg.DataDir == "" {
			return errors.New("storage.data_dir is required for the badger engine")
		}
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return fmt.Errorf("cannot create data directory: %w", err)
		}
	case "memory":
		// No directory needed
	default:
		return fmt.Errorf("storage.engine %q is not supported (badger, memory)", cfg.Engine)
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if cfg.ClusterKey == "" {
		return nil
	}
	if !strings.HasPrefix(cfg.ClusterKey, "mmck_") {
		return errors.New("security.cluster_key must start with mmck_")
	}
	if len(cfg.ClusterKey) != len("mmck_")+64 {
		return errors.New("security.cluster_key must carry 64 hex characters")
	}
	return nil
}

func verifyFederation(cfg *FederationSection) error {
	if cfg.ElectionTimeoutMin <= 0 || cfg.ElectionTimeoutMax <= 0 {
		return errors.New("federation.election_timeout_min/max must be positive")
	}
	if cfg.ElectionTimeoutMin >= cfg.ElectionTimeoutMax {
		return errors.New("federation.election_timeout_min must be below election_timeout_max")
	}
	if cfg.HeartbeatInterval <= 0 {
		return errors.New("federation.heartbeat_interval must be positive")
	}
	if cfg.HeartbeatInterval >= cfg.ElectionTimeoutMin {
		return errors.New("federation.heartbeat_interval must be below election_timeout_min")
	}
	if cfg.GossipFanout < 1 {
		return errors.New("federation.gossip_fanout must be at least 1")
	}
	if cfg.GossipMaxTTL < 1 {
		return errors.New("federation.gossip_max_ttl must be at least 1")
	}
	switch cfg.ConflictStrategy {
	case "lww", "highest_node", "merge_union":
	default:
		return fmt.Errorf("federation.conflict_strategy %q is not supported (lww, highest_node, merge_union)", cfg.ConflictStrategy)
	}
	if cfg.Health.DegradedFailures < 1 {
		return errors.New("federation.health.degraded_failures must be at least 1")
	}
	if cfg.Health.UnhealthyFailures <= cfg.Health.DegradedFailures {
		return errors.New("federation.health.unhealthy_failures must exceed degraded_failures")
	}
	if cfg.Health.RecoverySuccesses < 1 {
		return errors.New("federation.health.recovery_successes must be at least 1")
	}
	if cfg.Discovery.MaxNodes < 1 {
		return errors.New("federation.discovery.max_nodes must be at least 1")
	}
	return nil
}
