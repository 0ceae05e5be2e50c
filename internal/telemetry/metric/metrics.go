package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "memmesh"

// Set holds all federation metrics backed by a dedicated registry.
type Set struct {
	registry *prometheus.Registry

	// Consensus
	RaftTerm      prometheus.Gauge
	RaftRole      prometheus.Gauge // 0=follower, 1=candidate, 2=leader
	RaftCommitIdx prometheus.Gauge
	Elections     prometheus.Counter
	Proposals     *prometheus.CounterVec // result: committed|rejected

	// Membership
	MembersKnown   prometheus.Gauge
	MembersHealthy prometheus.Gauge
	Selections     *prometheus.CounterVec // algorithm
	HealthChanges  *prometheus.CounterVec // to_state

	// Gossip
	GossipSent    prometheus.Counter
	GossipRecv    prometheus.Counter
	GossipDeduped prometheus.Counter
	GossipDropped prometheus.Counter
	SyncRounds    prometheus.Counter
	SyncDivergent prometheus.Counter

	// Replication
	MergeConflicts *prometheus.CounterVec // strategy
	Quarantined    prometheus.Counter
	TombstonesGCed prometheus.Counter

	// Discovery
	DiscoveredNodes *prometheus.GaugeVec // source
}

// NewSet creates the federation metric set on a fresh registry.
func NewSet() *Set {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Set{registry: registry}

	s.RaftTerm = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "raft",
		Name: "current_term", Help: "Current consensus term",
	})
	s.RaftRole = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "raft",
		Name: "role", Help: "Current role (0=follower, 1=candidate, 2=leader)",
	})
	s.RaftCommitIdx = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "raft",
		Name: "commit_index", Help: "Highest committed log index",
	})
	s.Elections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "raft",
		Name: "elections_total", Help: "Elections started by this node",
	})
	s.Proposals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "raft",
		Name: "proposals_total", Help: "Commands proposed through this node",
	}, []string{"result"})

	s.MembersKnown = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "coordinator",
		Name: "members_known", Help: "Registered members including tombstones",
	})
	s.MembersHealthy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "coordinator",
		Name: "members_healthy", Help: "Members currently selectable",
	})
	s.Selections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "coordinator",
		Name: "selections_total", Help: "Node selections by algorithm",
	}, []string{"algorithm"})
	s.HealthChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "coordinator",
		Name: "health_transitions_total", Help: "Health state transitions",
	}, []string{"to_state"})

	s.GossipSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gossip",
		Name: "messages_sent_total", Help: "Gossip messages sent",
	})
	s.GossipRecv = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gossip",
		Name: "messages_received_total", Help: "Gossip messages received",
	})
	s.GossipDeduped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gossip",
		Name: "messages_deduplicated_total", Help: "Messages dropped as already seen",
	})
	s.GossipDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gossip",
		Name: "messages_dropped_total", Help: "Messages dropped by TTL expiry or rate limit",
	})
	s.SyncRounds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gossip",
		Name: "anti_entropy_rounds_total", Help: "Anti-entropy digest exchanges",
	})
	s.SyncDivergent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gossip",
		Name: "anti_entropy_divergent_keys_total", Help: "Keys reconciled by anti-entropy",
	})

	s.MergeConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "replication",
		Name: "merge_conflicts_total", Help: "Concurrent writes resolved",
	}, []string{"strategy"})
	s.Quarantined = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "replication",
		Name: "quarantined_records_total", Help: "Records quarantined on checksum mismatch",
	})
	s.TombstonesGCed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "replication",
		Name: "tombstones_collected_total", Help: "Tombstones garbage collected",
	})

	s.DiscoveredNodes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "discovery",
		Name: "known_nodes", Help: "Discovered nodes by source",
	}, []string{"source"})

	registry.MustRegister(
		s.RaftTerm, s.RaftRole, s.RaftCommitIdx, s.Elections, s.Proposals,
		s.MembersKnown, s.MembersHealthy, s.Selections, s.HealthChanges,
		s.GossipSent, s.GossipRecv, s.GossipDeduped, s.GossipDropped,
		s.SyncRounds, s.SyncDivergent,
		s.MergeConflicts, s.Quarantined, s.TombstonesGCed,
		s.DiscoveredNodes,
	)

	return s
}

// Registry exposes the underlying registry so other components
// (e.g. the storage engine) can register their own metrics.
func (s *Set) Registry() *prometheus.Registry {
	return s.registry
}
