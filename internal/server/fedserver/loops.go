package fedserver

import (
	"context"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
	"github.com/yndnr/memmesh-go/internal/federation/gossip"
)

// tombstoneGCInterval is how often removed-record tombstones past
// their retention window are purged.
const tombstoneGCInterval = time.Minute

// feedLoop consumes discovery records and folds them into the
// membership table, the consensus peer set and the gossip fanout
// pool. It ends when the discovery service closes its feed.
func (n *Node) feedLoop() {
	defer n.loopsWG.Done()

	for rec := range n.disc.Feed() {
		if rec.NodeID == n.id {
			continue
		}

		prev, known := n.addrs.Get(rec.NodeID)
		n.addrs.Set(rec.NodeID, rec.Addr)

		// Register only new or moved peers. Re-registering a known
		// node would reset its health streaks.
		_, err := n.coord.Get(rec.NodeID)
		fresh := err != nil || (known && prev != rec.Addr)
		if fresh {
			desc := domain.NodeDescriptor{
				ID:         rec.NodeID,
				Addr:       rec.Addr,
				Capability: rec.Capability,
			}
			if regErr := n.coord.Register(desc); regErr != nil {
				n.logger.Warn("register discovered node failed",
					"peer", rec.NodeID, "source", rec.Source, "error", regErr)
				continue
			}
			n.logger.Info("peer joined",
				"peer", rec.NodeID, "addr", rec.Addr, "source", rec.Source)

			// Pull the newcomer's full store instead of waiting for
			// anti-entropy to converge key by key.
			n.loopsWG.Add(1)
			go n.pullFrom(rec.NodeID, rec.Addr)
		}

		n.syncPeerSets()
	}
}

// pullFrom fetches a freshly seen peer's entire replicated store.
func (n *Node) pullFrom(id, addr string) {
	defer n.loopsWG.Done()

	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Federation.PeerTimeout)
	defer cancel()

	if err := n.mesh.PullFrom(ctx, gossip.Peer{ID: id, Addr: addr}, nil); err != nil {
		n.logger.Warn("initial pull from peer failed",
			"peer", id, "error", err)
	}
}

// heartbeatLoop probes every live peer each interval and feeds the
// outcome back into the coordinator's health state machine.
func (n *Node) heartbeatLoop() {
	defer n.loopsWG.Done()

	ticker := time.NewTicker(n.cfg.Federation.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.probePeers()
		case <-n.stopCh:
			return
		}
	}
}

func (n *Node) probePeers() {
	load := n.loadScore()
	for _, m := range n.coord.Members() {
		if m.ID == n.id || m.Health == domain.Dead {
			continue
		}
		go n.probe(m, load)
	}
}

func (n *Node) probe(m domain.NodeDescriptor, localLoad float64) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Federation.HeartbeatInterval)
	defer cancel()

	start := time.Now()
	if err := n.client.Heartbeat(ctx, m.Addr, localLoad); err != nil {
		if repErr := n.coord.ReportFailure(m.ID); repErr != nil {
			n.logger.Debug("report failure", "peer", m.ID, "error", repErr)
		}
		return
	}

	n.coord.ObserveRTT(m.ID, time.Since(start))

	// A successful probe is liveness evidence. The peer's own load
	// arrives on its inbound heartbeats, so keep its last value.
	if err := n.coord.Heartbeat(m.ID, m.LoadScore); err != nil {
		n.logger.Debug("record heartbeat", "peer", m.ID, "error", err)
	}
}

// gcLoop purges expired tombstones from the replicated store.
func (n *Node) gcLoop() {
	defer n.loopsWG.Done()

	ticker := time.NewTicker(tombstoneGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if purged := n.store.GCTombstones(time.Now()); purged > 0 {
				n.logger.Debug("tombstones purged", "count", purged)
			}
		case <-n.stopCh:
			return
		}
	}
}
