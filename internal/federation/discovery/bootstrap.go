package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
)

// BootstrapSource yields the statically configured seed peers.
//
// Peers are "host:port" or "node-id@host:port". When the node ID is
// not given, the address doubles as a provisional ID until the
// coordinator learns the peer's declared identity.
type BootstrapSource struct {
	peers []string
}

// NewBootstrapSource creates a bootstrap source from a seed list.
func NewBootstrapSource(peers []string) *BootstrapSource {
	return &BootstrapSource{peers: peers}
}

// Name implements Source.
func (s *BootstrapSource) Name() string { return domain.SourceBootstrap.String() }

// Priority implements Source.
func (s *BootstrapSource) Priority() int { return domain.SourceBootstrap.Priority() }

// Discover implements Source.
func (s *BootstrapSource) Discover(ctx context.Context) ([]domain.DiscoveryRecord, error) {
	now := time.Now()

	records := make([]domain.DiscoveryRecord, 0, len(s.peers))
	for _, peer := range s.peers {
		peer = strings.TrimSpace(peer)
		if peer == "" {
			continue
		}

		nodeID, addr := splitPeer(peer)
		records = append(records, domain.DiscoveryRecord{
			NodeID:       nodeID,
			Addr:         addr,
			Source:       domain.SourceBootstrap,
			DiscoveredAt: now,
		})
	}

	return records, nil
}

// splitPeer parses "node-id@host:port" or "host:port".
func splitPeer(peer string) (nodeID, addr string) {
	if at := strings.IndexByte(peer, '@'); at > 0 {
		return peer[:at], peer[at+1:]
	}
	return peer, peer
}
