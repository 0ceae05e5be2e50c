package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
)

// GossipSource learns peers through LAN gossip membership.
type GossipSource struct {
	config     *memberlist.Config
	memberList *memberlist.Memberlist
	logger     *slog.Logger
	shutdown   bool
}

// GossipSourceConfig configures the LAN gossip source.
type GossipSourceConfig struct {
	// NodeID is this node's unique identifier.
	NodeID string

	// BindAddr/BindPort is where memberlist gossip binds.
	BindAddr string
	BindPort int

	// RPCAddr is this node's RPC address, shared with peers through
	// membership metadata.
	RPCAddr string

	// Capability is this node's opaque capability tag.
	Capability string

	// SeedNodes are existing members to join on start.
	SeedNodes []string

	// Logger for logging.
	Logger *slog.Logger
}

// nodeMeta is the metadata blob shared through membership.
type nodeMeta struct {
	RPCAddr    string `json:"rpc_addr"`
	Capability string `json:"capability,omitempty"`
}

// NewGossipSource creates and starts the LAN gossip source.
func NewGossipSource(cfg GossipSourceConfig) (*GossipSource, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort

	// Share the RPC address through metadata so peers dial the right
	// port instead of the gossip one
	meta, err := json.Marshal(nodeMeta{RPCAddr: cfg.RPCAddr, Capability: cfg.Capability})
	if err != nil {
		return nil, fmt.Errorf("encode node metadata: %w", err)
	}
	mlConfig.Delegate = &metadataDelegate{meta: meta}

	// Route memberlist's own log output through slog
	mlConfig.LogOutput = &slogWriter{logger: cfg.Logger}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}

	s := &GossipSource{
		config:     mlConfig,
		memberList: ml,
		logger:     cfg.Logger,
	}

	if len(cfg.SeedNodes) > 0 {
		n, err := ml.Join(cfg.SeedNodes)
		if err != nil {
			ml.Shutdown()
			return nil, fmt.Errorf("join seed nodes: %w", err)
		}
		cfg.Logger.Info("joined gossip membership",
			"node_id", cfg.NodeID,
			"seed_nodes", cfg.SeedNodes,
			"joined_count", n)
	} else {
		cfg.Logger.Info("started gossip membership (first node)",
			"node_id", cfg.NodeID)
	}

	return s, nil
}

// Name implements Source.
func (s *GossipSource) Name() string { return domain.SourceGossip.String() }

// Priority implements Source.
func (s *GossipSource) Priority() int { return domain.SourceGossip.Priority() }

// Discover implements Source. It snapshots the current membership.
func (s *GossipSource) Discover(ctx context.Context) ([]domain.DiscoveryRecord, error) {
	if s.memberList == nil {
		return nil, nil
	}

	now := time.Now()
	local := s.memberList.LocalNode().Name

	members := s.memberList.Members()
	records := make([]domain.DiscoveryRecord, 0, len(members))
	for _, member := range members {
		if member.Name == local {
			continue
		}

		addr := net.JoinHostPort(member.Addr.String(), fmt.Sprintf("%d", member.Port))
		capability := ""
		if len(member.Meta) > 0 {
			var meta nodeMeta
			if err := json.Unmarshal(member.Meta, &meta); err == nil {
				if meta.RPCAddr != "" {
					addr = meta.RPCAddr
				}
				capability = meta.Capability
			} else {
				s.logger.Warn("member carries undecodable metadata, using gossip address",
					"node_id", member.Name)
			}
		}

		records = append(records, domain.DiscoveryRecord{
			NodeID:       member.Name,
			Addr:         addr,
			Source:       domain.SourceGossip,
			Capability:   capability,
			DiscoveredAt: now,
		})
	}

	return records, nil
}

// Leave gracefully leaves the membership.
func (s *GossipSource) Leave() error {
	if s.memberList == nil {
		return nil
	}

	if err := s.memberList.Leave(5 * time.Second); err != nil {
		s.logger.Error("failed to leave gossip membership", "error", err)
		return err
	}

	s.logger.Info("left gossip membership")
	return nil
}

// Close implements io.Closer for the discovery service: it leaves
// the membership so peers learn the departure immediately, then
// stops memberlist's goroutines and listeners.
func (s *GossipSource) Close() error {
	if s.shutdown || s.memberList == nil {
		return nil
	}
	if err := s.Leave(); err != nil {
		s.logger.Warn("leave failed, shutting down anyway", "error", err)
	}
	return s.Shutdown()
}

// Shutdown stops the gossip source.
func (s *GossipSource) Shutdown() error {
	if s.shutdown || s.memberList == nil {
		return nil
	}
	s.shutdown = true

	if err := s.memberList.Shutdown(); err != nil {
		return fmt.Errorf("shutdown memberlist: %w", err)
	}

	s.logger.Info("gossip source shutdown complete")
	return nil
}

// slogWriter adapts slog.Logger to io.Writer for memberlist.
type slogWriter struct {
	logger *slog.Logger
}

// Write implements io.Writer.
func (w *slogWriter) Write(p []byte) (n int, err error) {
	w.logger.Debug(string(p))
	return len(p), nil
}

// metadataDelegate provides node metadata to memberlist.
type metadataDelegate struct {
	meta []byte
}

// NodeMeta returns metadata about this node (up to 512 bytes).
func (m *metadataDelegate) NodeMeta(limit int) []byte {
	if len(m.meta) > limit {
		return m.meta[:limit]
	}
	return m.meta
}

// NotifyMsg is called when a user message is received (not used).
func (m *metadataDelegate) NotifyMsg([]byte) {}

// GetBroadcasts is called to get broadcasts to send (not used).
func (m *metadataDelegate) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState returns the local state for synchronization (not used).
func (m *metadataDelegate) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState merges remote state (not used).
func (m *metadataDelegate) MergeRemoteState(buf []byte, join bool) {
}
