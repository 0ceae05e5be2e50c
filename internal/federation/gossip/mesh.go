package gossip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
	"github.com/yndnr/memmesh-go/internal/federation/replication"
	"github.com/yndnr/memmesh-go/internal/telemetry/metric"
)

const (
	defaultFanout              = 3
	defaultInterval            = 200 * time.Millisecond
	defaultMaxTTL              = 5
	defaultForwardRate         = 500.0
	defaultAntiEntropyInterval = 10 * time.Second
	defaultPeerTimeout         = 30 * time.Second
	defaultCallTimeout         = 2 * time.Second
	defaultSeenCap             = 8192
)

// Config configures a gossip mesh.
type Config struct {
	// LocalID is this node's ID.
	LocalID string

	// Fanout is how many random live peers each tick forwards to.
	Fanout int

	// Interval is the gossip tick period.
	Interval time.Duration

	// MaxTTL is the hop budget stamped on locally originated messages.
	MaxTTL int

	// ForwardRate bounds re-forwarded messages per second.
	ForwardRate float64

	// AntiEntropyInterval is the digest reconciliation period.
	AntiEntropyInterval time.Duration

	// PeerTimeout removes peers from the fanout pool when no exchange
	// has succeeded for this long.
	PeerTimeout time.Duration

	// CallTimeout bounds each outbound exchange.
	CallTimeout time.Duration

	// SeenCap bounds the dedupe window.
	SeenCap int

	// Store receives merged replication deltas.
	Store *replication.Store

	// Transport delivers messages to peers.
	Transport Transport

	// Logger for logging.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metric.Set
}

type peerState struct {
	peer   Peer
	lastOK time.Time
}

// Mesh floods replication deltas to random peers and reconciles
// divergence through periodic anti-entropy digest exchange.
type Mesh struct {
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	mu        sync.Mutex
	peers     map[string]*peerState
	outbox    []Message
	seen      map[string]struct{}
	seenOrder []string

	intervalCh chan [2]time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	stopOnce   sync.Once
}

// NewMesh creates a gossip mesh.
func NewMesh(cfg Config) (*Mesh, error) {
	if cfg.LocalID == "" {
		return nil, fmt.Errorf("gossip: %w", domain.ErrNodeIDRequired)
	}
	if cfg.Store == nil {
		return nil, errors.New("gossip: replication store is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("gossip: transport is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = defaultFanout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = defaultMaxTTL
	}
	if cfg.ForwardRate <= 0 {
		cfg.ForwardRate = defaultForwardRate
	}
	if cfg.AntiEntropyInterval <= 0 {
		cfg.AntiEntropyInterval = defaultAntiEntropyInterval
	}
	if cfg.PeerTimeout <= 0 {
		cfg.PeerTimeout = defaultPeerTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.SeenCap <= 0 {
		cfg.SeenCap = defaultSeenCap
	}

	burst := int(cfg.ForwardRate)
	if burst < 1 {
		burst = 1
	}

	return &Mesh{
		cfg:        cfg,
		logger:     cfg.Logger.With("node_id", cfg.LocalID),
		limiter:    rate.NewLimiter(rate.Limit(cfg.ForwardRate), burst),
		peers:      make(map[string]*peerState),
		seen:       make(map[string]struct{}),
		intervalCh: make(chan [2]time.Duration, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start launches the gossip and anti-entropy loops.
func (m *Mesh) Start() {
	go m.run()
}

// Stop halts both loops.
func (m *Mesh) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.doneCh
	})
}

func (m *Mesh) run() {
	defer close(m.doneCh)

	gossip := time.NewTicker(m.cfg.Interval)
	defer gossip.Stop()
	entropy := time.NewTicker(m.cfg.AntiEntropyInterval)
	defer entropy.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-gossip.C:
			m.tick()
		case <-entropy.C:
			m.syncOnce()
		case next := <-m.intervalCh:
			if next[0] > 0 {
				gossip.Reset(next[0])
			}
			if next[1] > 0 {
				entropy.Reset(next[1])
			}
			m.logger.Info("gossip intervals updated",
				"gossip_interval", next[0],
				"anti_entropy_interval", next[1])
		}
	}
}

// SetIntervals retunes the gossip tick and anti-entropy periods at
// runtime. Zero leaves a period unchanged.
func (m *Mesh) SetIntervals(gossipInterval, antiEntropyInterval time.Duration) {
	select {
	case m.intervalCh <- [2]time.Duration{gossipInterval, antiEntropyInterval}:
	case <-m.stopCh:
	}
}

// SetPeers replaces the fanout candidate pool, keeping liveness
// bookkeeping for peers that stay.
func (m *Mesh) SetPeers(peers []Peer) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]*peerState, len(peers))
	for _, p := range peers {
		if p.ID == m.cfg.LocalID {
			continue
		}
		if existing, ok := m.peers[p.ID]; ok {
			existing.peer = p
			next[p.ID] = existing
			continue
		}
		next[p.ID] = &peerState{peer: p, lastOK: now}
	}
	m.peers = next
}

// Peers returns the current fanout pool, sorted by ID.
func (m *Mesh) Peers() []Peer {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Peer, 0, len(m.peers))
	for _, ps := range m.peers {
		out = append(out, ps.peer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Broadcast buffers a PUSH carrying the given records. The message
// leaves on the next tick.
func (m *Mesh) Broadcast(records ...replication.Record) {
	if len(records) == 0 {
		return
	}
	msg := NewPush(m.cfg.LocalID, m.cfg.MaxTTL, records)

	m.mu.Lock()
	m.markSeenLocked(msg.ID)
	m.outbox = append(m.outbox, msg)
	m.mu.Unlock()
}

// HandleMessage processes an inbound gossip message and returns the
// reply to send back, if the exchange has one. PUSH messages are
// deduplicated by ID, merged into the store, and re-forwarded while
// their TTL lasts; PULL, PUSH_PULL, SYNC, PING and PONG are direct
// exchanges and never flood.
func (m *Mesh) HandleMessage(ctx context.Context, msg Message) (*Message, error) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.GossipRecv.Inc()
	}

	switch msg.Kind {
	case KindPing:
		return &Message{
			ID:     messageID(KindPong, m.cfg.LocalID, nil, nil),
			Kind:   KindPong,
			Origin: m.cfg.LocalID,
			SentAt: time.Now().UTC(),
		}, nil

	case KindPong:
		return nil, nil

	case KindPull:
		return m.replyPush(m.exportFor(msg.Keys)), nil

	case KindSync:
		return m.handleSync(msg), nil

	case KindPush, KindPushPull:
		return m.handlePush(msg)

	default:
		return nil, fmt.Errorf("gossip: unknown message kind %q", msg.Kind)
	}
}

func (m *Mesh) handlePush(msg Message) (*Message, error) {
	m.mu.Lock()
	_, dup := m.seen[msg.ID]
	if !dup {
		m.markSeenLocked(msg.ID)
	}
	m.mu.Unlock()

	var reply *Message
	if msg.Kind == KindPushPull {
		reply = m.replyPush(m.exportFor(msg.Keys))
	}

	if dup {
		// Idempotent replay: already applied and forwarded
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.GossipDeduped.Inc()
		}
		return reply, nil
	}

	for _, rec := range msg.Records {
		if _, err := m.cfg.Store.Merge(rec); err != nil {
			m.logger.Warn("gossip merge rejected",
				"key", rec.Key,
				"origin", msg.Origin,
				"error", err)
		}
	}

	// Only PUSH floods onward
	if msg.Kind != KindPush {
		return reply, nil
	}

	if ttl := msg.TTL - 1; ttl > 0 {
		if m.limiter.Allow() {
			forward := msg
			forward.TTL = ttl
			m.mu.Lock()
			m.outbox = append(m.outbox, forward)
			m.mu.Unlock()
		} else if m.cfg.Metrics != nil {
			m.cfg.Metrics.GossipDropped.Inc()
		}
	}

	return reply, nil
}

func (m *Mesh) handleSync(msg Message) *Message {
	diff := m.cfg.Store.DiffKeys(msg.Digest)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SyncDivergent.Add(float64(len(diff)))
	}

	var want []string
	for _, key := range diff {
		if _, ok := msg.Digest[key]; ok {
			want = append(want, key)
		}
	}

	return &Message{
		ID:      messageID(KindSync, m.cfg.LocalID, diff, nil),
		Kind:    KindSync,
		Origin:  m.cfg.LocalID,
		Records: m.cfg.Store.Export(diff),
		Want:    want,
		SentAt:  time.Now().UTC(),
	}
}

func (m *Mesh) exportFor(keys []string) []replication.Record {
	if len(keys) == 0 {
		return m.cfg.Store.All()
	}
	return m.cfg.Store.Export(keys)
}

func (m *Mesh) replyPush(records []replication.Record) *Message {
	msg := NewPush(m.cfg.LocalID, 0, records)
	return &msg
}

// PullFrom fetches records from one peer and merges them locally. An
// empty key list pulls the peer's entire store; used when a node
// joins the mesh.
func (m *Mesh) PullFrom(ctx context.Context, peer Peer, keys []string) error {
	msg := Message{
		ID:     messageID(KindPull, m.cfg.LocalID, keys, nil),
		Kind:   KindPull,
		Origin: m.cfg.LocalID,
		Keys:   keys,
		SentAt: time.Now().UTC(),
	}

	reply, err := m.cfg.Transport.Send(ctx, peer, msg)
	if err != nil {
		return fmt.Errorf("pull from %s: %w", peer.ID, err)
	}
	m.markSuccess(peer.ID)

	if reply == nil {
		return nil
	}
	for _, rec := range reply.Records {
		if _, err := m.cfg.Store.Merge(rec); err != nil {
			m.logger.Warn("pull merge rejected", "key", rec.Key, "error", err)
		}
	}
	return nil
}

// tick drains the outbox toward fanout random live peers and prunes
// peers that stayed unresponsive past the timeout.
func (m *Mesh) tick() {
	now := time.Now()

	m.mu.Lock()
	for id, ps := range m.peers {
		if now.Sub(ps.lastOK) > m.cfg.PeerTimeout {
			m.logger.Info("peer dropped from fanout pool", "peer", id)
			delete(m.peers, id)
		}
	}

	msgs := m.outbox
	m.outbox = nil

	var idle []Peer
	pool := make([]Peer, 0, len(m.peers))
	for _, ps := range m.peers {
		pool = append(pool, ps.peer)
		if now.Sub(ps.lastOK) > m.cfg.PeerTimeout/2 {
			idle = append(idle, ps.peer)
		}
	}
	m.mu.Unlock()

	if len(msgs) > 0 && len(pool) > 0 {
		rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		targets := pool
		if len(targets) > m.cfg.Fanout {
			targets = targets[:m.cfg.Fanout]
		}
		for _, peer := range targets {
			go m.deliver(peer, msgs)
		}
	}

	for _, peer := range idle {
		go m.ping(peer)
	}
}

func (m *Mesh) deliver(peer Peer, msgs []Message) {
	for _, msg := range msgs {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CallTimeout)
		_, err := m.cfg.Transport.Send(ctx, peer, msg)
		cancel()

		if err != nil {
			m.logger.Debug("gossip send failed", "peer", peer.ID, "error", err)
			return
		}
		m.markSuccess(peer.ID)
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.GossipSent.Inc()
		}
	}
}

func (m *Mesh) ping(peer Peer) {
	msg := Message{
		ID:     messageID(KindPing, m.cfg.LocalID, nil, nil),
		Kind:   KindPing,
		Origin: m.cfg.LocalID,
		SentAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CallTimeout)
	defer cancel()

	reply, err := m.cfg.Transport.Send(ctx, peer, msg)
	if err != nil {
		m.logger.Debug("ping failed", "peer", peer.ID, "error", err)
		return
	}
	if reply != nil && reply.Kind == KindPong {
		m.markSuccess(peer.ID)
	}
}

// syncOnce runs one anti-entropy round against a random peer.
func (m *Mesh) syncOnce() {
	m.mu.Lock()
	pool := make([]Peer, 0, len(m.peers))
	for _, ps := range m.peers {
		pool = append(pool, ps.peer)
	}
	m.mu.Unlock()

	if len(pool) == 0 {
		return
	}
	peer := pool[rand.Intn(len(pool))]

	digest := m.cfg.Store.Digest()
	msg := Message{
		ID:     messageID(KindSync, m.cfg.LocalID, nil, nil),
		Kind:   KindSync,
		Origin: m.cfg.LocalID,
		Digest: digest,
		SentAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CallTimeout)
	defer cancel()

	reply, err := m.cfg.Transport.Send(ctx, peer, msg)
	if err != nil {
		m.logger.Debug("anti-entropy exchange failed", "peer", peer.ID, "error", err)
		return
	}
	m.markSuccess(peer.ID)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SyncRounds.Inc()
	}
	if reply == nil {
		return
	}

	for _, rec := range reply.Records {
		if _, err := m.cfg.Store.Merge(rec); err != nil {
			m.logger.Warn("anti-entropy merge rejected", "key", rec.Key, "error", err)
		}
	}

	// Push back the records the peer asked for
	if len(reply.Want) > 0 {
		records := m.cfg.Store.Export(reply.Want)
		if len(records) > 0 {
			push := NewPush(m.cfg.LocalID, 1, records)
			pushCtx, pushCancel := context.WithTimeout(context.Background(), m.cfg.CallTimeout)
			defer pushCancel()
			if _, err := m.cfg.Transport.Send(pushCtx, peer, push); err != nil {
				m.logger.Debug("anti-entropy push back failed", "peer", peer.ID, "error", err)
			}
		}
	}
}

func (m *Mesh) markSuccess(peerID string) {
	m.mu.Lock()
	if ps, ok := m.peers[peerID]; ok {
		ps.lastOK = time.Now()
	}
	m.mu.Unlock()
}

// markSeenLocked records a message ID in the bounded dedupe window.
func (m *Mesh) markSeenLocked(id string) {
	if _, ok := m.seen[id]; ok {
		return
	}
	m.seen[id] = struct{}{}
	m.seenOrder = append(m.seenOrder, id)

	for len(m.seenOrder) > m.cfg.SeenCap {
		oldest := m.seenOrder[0]
		m.seenOrder = m.seenOrder[1:]
		delete(m.seen, oldest)
	}
}
