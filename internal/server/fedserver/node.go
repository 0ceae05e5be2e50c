package fedserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/yndnr/memmesh-go/internal/federation/consensus"
	"github.com/yndnr/memmesh-go/internal/federation/coordinator"
	"github.com/yndnr/memmesh-go/internal/federation/discovery"
	"github.com/yndnr/memmesh-go/internal/federation/domain"
	"github.com/yndnr/memmesh-go/internal/federation/gossip"
	"github.com/yndnr/memmesh-go/internal/federation/replication"
	"github.com/yndnr/memmesh-go/internal/federation/transport"
	"github.com/yndnr/memmesh-go/internal/infra/confloader"
	"github.com/yndnr/memmesh-go/internal/server/config"
	"github.com/yndnr/memmesh-go/internal/storage"
	"github.com/yndnr/memmesh-go/internal/storage/memory"
	"github.com/yndnr/memmesh-go/internal/telemetry/metric"
	"github.com/yndnr/memmesh-go/pkg/cmap"
	"github.com/yndnr/memmesh-go/pkg/seal"
)

// strongPrefix namespaces consensus-applied keys in the KV engine.
const strongPrefix = "strong:"

// Config configures a federation node.
type Config struct {
	// Base is the verified server configuration.
	Base *config.ServerConfig

	// ConfigFile enables hot reload when set.
	ConfigFile string

	// Logger for logging.
	Logger *slog.Logger
}

// strongCommand is the consensus log entry payload.
type strongCommand struct {
	Op    string `json:"op"` // "set" or "delete"
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// Node is a running federation member.
type Node struct {
	cfg        *config.ServerConfig
	configFile string
	id         string
	logger     *slog.Logger
	metrics    *metric.Set

	engine    storage.KVEngine
	store     *replication.Store
	coord     *coordinator.Coordinator
	disc      *discovery.Service
	cons      *consensus.Node
	mesh      *gossip.Mesh
	client    *transport.Client
	responder *discovery.BroadcastResponder
	watcher   *confloader.Watcher

	httpSrv  *http.Server
	listener net.Listener

	// addrs caches discovery-fed peer addresses; it backs transport
	// resolution until the coordinator knows the peer.
	addrs *cmap.Map[string]

	stopCh   chan struct{}
	loopsWG  sync.WaitGroup
	stopOnce sync.Once
}

// New assembles a federation node. Start launches it.
func New(cfg Config) (*Node, error) {
	if cfg.Base == nil {
		return nil, fmt.Errorf("fedserver: base config is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	nodeID, err := config.NodeID(cfg.Base)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger.With("node_id", nodeID)

	n := &Node{
		cfg:        cfg.Base,
		configFile: cfg.ConfigFile,
		id:         nodeID,
		logger:     logger,
		metrics:    metric.NewSet(),
		addrs:      cmap.New[string](),
		stopCh:     make(chan struct{}),
	}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	n.store, err = replication.NewStore(config.ToReplicationConfig(cfg.Base, nodeID, n.engine, logger, n.metrics))
	if err != nil {
		n.engine.Close()
		return nil, err
	}

	n.coord = coordinator.New(config.ToCoordinatorConfig(cfg.Base, logger, n.metrics))

	sealer, err := n.buildSealer()
	if err != nil {
		n.engine.Close()
		return nil, err
	}

	n.client = transport.NewClient(transport.ClientConfig{
		LocalID: nodeID,
		Resolve: n.resolveAddr,
		Sealer:  sealer,
		Logger:  logger,
	})

	n.cons, err = consensus.New(consensus.Config{
		LocalID:            nodeID,
		ElectionTimeoutMin: cfg.Base.Federation.ElectionTimeoutMin,
		ElectionTimeoutMax: cfg.Base.Federation.ElectionTimeoutMax,
		HeartbeatInterval:  cfg.Base.Federation.HeartbeatInterval,
		Transport:          n.client,
		Engine:             n.engine,
		Apply:              n.applyEntry,
		Logger:             logger,
		Metrics:            n.metrics,
	})
	if err != nil {
		n.engine.Close()
		return nil, err
	}

	n.mesh, err = gossip.NewMesh(config.ToGossipConfig(cfg.Base, nodeID, n.store, n.client, logger, n.metrics))
	if err != nil {
		n.engine.Close()
		return nil, err
	}

	sources, err := config.BuildDiscoverySources(cfg.Base, nodeID, logger)
	if err != nil {
		n.engine.Close()
		return nil, err
	}
	n.disc = discovery.NewService(config.ToDiscoveryConfig(cfg.Base, nodeID, logger, n.metrics), sources...)

	if port := cfg.Base.Federation.Discovery.BroadcastPort; port > 0 {
		n.responder, err = discovery.NewBroadcastResponder(
			nodeID, config.AdvertiseAddr(cfg.Base), cfg.Base.Federation.Capability, port, logger)
		if err != nil {
			logger.Warn("broadcast responder disabled", "error", err)
		}
	}

	rpc := transport.NewServer(transport.ServerConfig{
		LocalID:    nodeID,
		Consensus:  n.cons,
		Gossip:     n.mesh,
		Heartbeats: peerHeartbeats{n},
		Sealer:     sealer,
		Logger:     logger,
	})
	n.httpSrv = &http.Server{Handler: n.buildHandler(rpc.Handler())}

	return n, nil
}

func (n *Node) initStorage() error {
	kv := config.ToKVConfig(n.cfg)
	switch kv.Engine {
	case "memory":
		n.engine = memory.NewEngine()
		return nil
	default:
		engine, err := storage.NewBadgerEngine(kv, n.logger)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		engine.RegisterMetrics(n.metrics.Registry())
		n.engine = engine
		return nil
	}
}

func (n *Node) buildSealer() (*seal.Sealer, error) {
	key, err := config.ClusterKeyBytes(n.cfg)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, nil
	}
	return seal.New(key)
}

// ID returns this node's ID.
func (n *Node) ID() string { return n.id }

// Addr returns the bound RPC address, valid after Start.
func (n *Node) Addr() string {
	if n.listener == nil {
		return n.cfg.Server.RPCAddr
	}
	return n.listener.Addr().String()
}

// advertiseAddr is the address peers should dial. When no explicit
// advertise address is configured, the bound listener address is used
// so that a ":0" bind still advertises a reachable port.
func (n *Node) advertiseAddr() string {
	if n.cfg.Server.AdvertiseAddr != "" {
		return n.cfg.Server.AdvertiseAddr
	}
	if n.listener != nil {
		return n.listener.Addr().String()
	}
	return n.cfg.Server.RPCAddr
}

// Start binds the RPC listener and launches every component.
func (n *Node) Start() error {
	listener, err := net.Listen("tcp", n.cfg.Server.RPCAddr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", n.cfg.Server.RPCAddr, err)
	}
	n.listener = listener

	go func() {
		if err := n.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			n.logger.Error("rpc server error", "error", err)
		}
	}()

	// Self-registration seeds the membership table.
	self := domain.NodeDescriptor{
		ID:         n.id,
		Addr:       n.advertiseAddr(),
		Capability: n.cfg.Federation.Capability,
	}
	if err := n.coord.Register(self); err != nil {
		return fmt.Errorf("register self: %w", err)
	}

	n.coord.Start()
	n.cons.Start()
	n.mesh.Start()
	n.disc.Start()

	n.loopsWG.Add(3)
	go n.feedLoop()
	go n.heartbeatLoop()
	go n.gcLoop()

	if n.configFile != "" {
		if err := n.watchConfig(); err != nil {
			n.logger.Warn("config hot reload disabled", "error", err)
		}
	}

	n.logger.Info("federation node started",
		"addr", n.Addr(),
		"advertise_addr", n.advertiseAddr(),
		"storage_engine", n.cfg.Storage.Engine)
	return nil
}

// Stop shuts the node down: inbound traffic first, then the
// background loops, then each component, storage last.
func (n *Node) Stop(ctx context.Context) error {
	var firstErr error
	n.stopOnce.Do(func() {
		if n.watcher != nil {
			n.watcher.Stop()
		}
		if err := n.httpSrv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}

		close(n.stopCh)
		n.disc.Stop() // closes the feed, ending feedLoop
		n.loopsWG.Wait()

		n.mesh.Stop()
		n.cons.Stop()
		n.coord.Stop()
		if n.responder != nil {
			n.responder.Close()
		}
		if err := n.engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		n.logger.Info("federation node stopped")
	})
	return firstErr
}

// Put writes a key to the replicated store and floods the delta.
func (n *Node) Put(key string, value []byte) error {
	rec, err := n.store.Put(key, value)
	if err != nil {
		return err
	}
	n.mesh.Broadcast(rec)
	return nil
}

// Get reads a key from the replicated store.
func (n *Node) Get(key string) ([]byte, error) {
	return n.store.Get(key)
}

// Delete tombstones a key and floods the tombstone.
func (n *Node) Delete(key string) error {
	rec, err := n.store.Delete(key)
	if err != nil {
		return err
	}
	n.mesh.Broadcast(rec)
	return nil
}

// Ingest merges an externally produced record and floods it when it
// changed local state.
func (n *Node) Ingest(rec replication.Record) error {
	applied, err := n.store.Merge(rec)
	if err != nil {
		return err
	}
	if applied {
		n.mesh.Broadcast(rec)
	}
	return nil
}

// ExportShared returns the live records under a key prefix.
func (n *Node) ExportShared(prefix string) []replication.Record {
	var out []replication.Record
	for _, rec := range n.store.All() {
		if rec.Tombstone || !strings.HasPrefix(rec.Key, prefix) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// StrongPut writes a key through the consensus group. It blocks until
// the write commits on a majority.
func (n *Node) StrongPut(ctx context.Context, key string, value []byte) error {
	return n.propose(ctx, strongCommand{Op: "set", Key: key, Value: value})
}

// StrongDelete removes a consensus-replicated key.
func (n *Node) StrongDelete(ctx context.Context, key string) error {
	return n.propose(ctx, strongCommand{Op: "delete", Key: key})
}

// StrongGet reads a consensus-replicated key from local applied state.
func (n *Node) StrongGet(ctx context.Context, key string) ([]byte, error) {
	value, err := n.engine.Get(ctx, []byte(strongPrefix+key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, domain.ErrKeyNotFound
	}
	return value, err
}

func (n *Node) propose(ctx context.Context, cmd strongCommand) error {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	_, err = n.cons.Propose(ctx, raw)
	return err
}

// applyEntry executes a committed consensus entry against the strong
// keyspace. Entries arrive in strict log order.
func (n *Node) applyEntry(entry consensus.LogEntry) {
	var cmd strongCommand
	if err := json.Unmarshal(entry.Command, &cmd); err != nil {
		n.logger.Error("undecodable log entry", "index", entry.Index, "error", err)
		return
	}

	ctx := context.Background()
	switch cmd.Op {
	case "set":
		if err := n.engine.Set(ctx, []byte(strongPrefix+cmd.Key), cmd.Value); err != nil {
			n.logger.Error("apply set failed", "index", entry.Index, "key", cmd.Key, "error", err)
		}
	case "delete":
		if err := n.engine.Delete(ctx, []byte(strongPrefix+cmd.Key)); err != nil {
			n.logger.Error("apply delete failed", "index", entry.Index, "key", cmd.Key, "error", err)
		}
	default:
		n.logger.Error("unknown log entry op", "index", entry.Index, "op", cmd.Op)
	}
}

// Select picks a member with the given algorithm.
func (n *Node) Select(algorithm string) (*domain.NodeDescriptor, error) {
	return n.coord.Select(algorithm)
}

// Status summarizes the node for operators.
type Status struct {
	NodeID      string `json:"node_id"`
	Addr        string `json:"addr"`
	Role        string `json:"role"`
	Term        uint64 `json:"term"`
	LeaderID    string `json:"leader_id,omitempty"`
	CommitIndex uint64 `json:"commit_index"`
	Degraded    bool   `json:"degraded"`

	// Replication reads like "3 of 4 nodes reachable".
	Replication string `json:"replication"`

	MembersTotal      int `json:"members_total"`
	MembersSelectable int `json:"members_selectable"`
	Records           int `json:"records"`
	Quarantined       int `json:"quarantined"`
}

// Status reports the node's consensus, membership and replication
// state.
func (n *Node) Status() Status {
	cs := n.cons.Status()
	selectable, total := n.coord.Reachable()

	return Status{
		NodeID:            n.id,
		Addr:              n.advertiseAddr(),
		Role:              cs.Role.String(),
		Term:              cs.Term,
		LeaderID:          cs.LeaderID,
		CommitIndex:       cs.CommitIndex,
		Degraded:          cs.Degraded,
		Replication:       fmt.Sprintf("%d of %d nodes reachable", selectable, total),
		MembersTotal:      total,
		MembersSelectable: selectable,
		Records:           len(n.store.All()),
		Quarantined:       len(n.store.Quarantined()),
	}
}

// Members returns the coordinator's membership table.
func (n *Node) Members() []domain.NodeDescriptor {
	return n.coord.Members()
}

// resolveAddr maps a peer ID to its RPC address, preferring live
// membership over raw discovery records.
func (n *Node) resolveAddr(peerID string) (string, bool) {
	if desc, err := n.coord.Get(peerID); err == nil && desc.Addr != "" {
		return desc.Addr, true
	}
	return n.addrs.Get(peerID)
}

// peerHeartbeats adapts inbound heartbeats onto the coordinator.
type peerHeartbeats struct{ n *Node }

func (p peerHeartbeats) Heartbeat(nodeID string, load float64) error {
	err := p.n.coord.Heartbeat(nodeID, load)
	if err == nil || !domain.IsDomainError(err, domain.ErrNodeNotFound.Code) {
		return err
	}

	// First contact from a node discovery has seen but the
	// coordinator has not: admit it on the spot.
	addr, ok := p.n.addrs.Get(nodeID)
	if !ok {
		return err
	}

	if regErr := p.n.coord.Register(domain.NodeDescriptor{ID: nodeID, Addr: addr}); regErr != nil {
		return regErr
	}
	return p.n.coord.Heartbeat(nodeID, load)
}

// loadScore estimates local load from storage size.
func (n *Node) loadScore() float64 {
	stats, err := n.engine.Stats(context.Background())
	if err != nil {
		return 0
	}

	score := float64(stats.TotalKeys) / 1e6
	if score > 1 {
		score = 1
	}
	return score
}

// syncPeerSets pushes the current membership into the consensus group
// and the gossip fanout pool.
func (n *Node) syncPeerSets() {
	members := n.coord.Members()

	ids := make([]string, 0, len(members))
	peers := make([]gossip.Peer, 0, len(members))
	for _, m := range members {
		if m.Health == domain.Dead {
			continue
		}
		ids = append(ids, m.ID)
		if m.ID != n.id {
			peers = append(peers, gossip.Peer{ID: m.ID, Addr: m.Addr})
		}
	}

	n.cons.SetPeers(ids)
	n.mesh.SetPeers(peers)
}
