package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
	"github.com/yndnr/memmesh-go/internal/storage"
	"github.com/yndnr/memmesh-go/internal/telemetry/metric"
)

// ErrStopped is returned for calls made after Stop.
var ErrStopped = errors.New("consensus: node stopped")

// Config configures a consensus node.
type Config struct {
	// LocalID is this node's ID.
	LocalID string

	// Peers are the other group members' IDs.
	Peers []string

	// ElectionTimeoutMin/Max bound the randomized election timeout.
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration

	// HeartbeatInterval is the leader's AppendEntries period.
	HeartbeatInterval time.Duration

	// Transport carries RPCs to peers.
	Transport Transport

	// Engine persists term, vote and log across restarts.
	Engine storage.KVEngine

	// Apply receives committed entries in strict index order.
	Apply func(LogEntry)

	// Logger for logging.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metric.Set
}

type rpcEnvelope struct {
	vote        *RequestVoteRequest
	voteReply   chan RequestVoteResponse
	appendReq   *AppendEntriesRequest
	appendReply chan AppendEntriesResponse
}

type proposeReply struct {
	index uint64
	err   error
}

type proposeRequest struct {
	command []byte
	replyCh chan proposeReply
}

type voteResult struct {
	peerID string
	term   uint64 // term the request was sent in
	resp   RequestVoteResponse
	err    error
}

type appendResult struct {
	peerID    string
	term      uint64
	prevIndex uint64
	count     int
	resp      AppendEntriesResponse
	err       error
}

// Node is the consensus actor. All fields below the channel block are
// owned by the run goroutine.
type Node struct {
	cfg     Config
	logger  *slog.Logger
	durable durableState
	rng     *rand.Rand

	rpcCh        chan rpcEnvelope
	proposeCh    chan proposeRequest
	peersCh      chan []string
	voteRespCh   chan voteResult
	appendRespCh chan appendResult
	stopCh       chan struct{}
	doneCh       chan struct{}
	stopOnce     sync.Once

	statusMu sync.RWMutex
	snapshot Status

	// run-loop state
	role        Role
	currentTerm uint64
	votedFor    string
	log         []LogEntry
	commitIndex uint64
	lastApplied uint64
	leaderID    string
	peers       map[string]struct{}

	// leader volatile state
	nextIndex  map[string]uint64
	matchIndex map[string]uint64
	lastAck    map[string]time.Time
	votes      map[string]bool
	pending    map[uint64]chan proposeReply

	electionTimer *time.Timer
}

// New creates a consensus node, restoring any persisted state.
func New(cfg Config) (*Node, error) {
	if cfg.LocalID == "" {
		return nil, fmt.Errorf("consensus: %w", domain.ErrNodeIDRequired)
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("consensus: transport is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("consensus: storage engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ElectionTimeoutMin <= 0 {
		cfg.ElectionTimeoutMin = 150 * time.Millisecond
	}
	if cfg.ElectionTimeoutMax <= cfg.ElectionTimeoutMin {
		cfg.ElectionTimeoutMax = 2 * cfg.ElectionTimeoutMin
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = cfg.ElectionTimeoutMin / 3
	}

	n := &Node{
		cfg:          cfg,
		logger:       cfg.Logger.With("node_id", cfg.LocalID),
		durable:      durableState{engine: cfg.Engine},
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		rpcCh:        make(chan rpcEnvelope),
		proposeCh:    make(chan proposeRequest),
		peersCh:      make(chan []string),
		voteRespCh:   make(chan voteResult, 64),
		appendRespCh: make(chan appendResult, 64),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		role:         Follower,
		peers:        make(map[string]struct{}),
		nextIndex:    make(map[string]uint64),
		matchIndex:   make(map[string]uint64),
		lastAck:      make(map[string]time.Time),
		pending:      make(map[uint64]chan proposeReply),
	}
	for _, peer := range cfg.Peers {
		if peer != cfg.LocalID {
			n.peers[peer] = struct{}{}
		}
	}

	term, votedFor, log, err := n.durable.restore(context.Background())
	if err != nil {
		return nil, fmt.Errorf("consensus: %w", err)
	}
	n.currentTerm = term
	n.votedFor = votedFor
	n.log = log
	if len(log) > 0 {
		n.logger.Info("consensus state restored",
			"term", term,
			"log_entries", len(log),
			"last_index", n.lastIndex())
	}

	n.publishStatus()
	return n, nil
}

// Start launches the consensus loop.
func (n *Node) Start() {
	go n.run()
}

// Stop halts the loop. Pending proposals fail with ErrStopped.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		<-n.doneCh
	})
}

// HandleRequestVote submits an inbound vote RPC to the consensus loop.
func (n *Node) HandleRequestVote(ctx context.Context, req RequestVoteRequest) (RequestVoteResponse, error) {
	env := rpcEnvelope{vote: &req, voteReply: make(chan RequestVoteResponse, 1)}
	select {
	case n.rpcCh <- env:
	case <-n.stopCh:
		return RequestVoteResponse{}, ErrStopped
	case <-ctx.Done():
		return RequestVoteResponse{}, ctx.Err()
	}

	select {
	case resp := <-env.voteReply:
		return resp, nil
	case <-ctx.Done():
		return RequestVoteResponse{}, ctx.Err()
	}
}

// HandleAppendEntries submits an inbound append RPC to the loop.
func (n *Node) HandleAppendEntries(ctx context.Context, req AppendEntriesRequest) (AppendEntriesResponse, error) {
	env := rpcEnvelope{appendReq: &req, appendReply: make(chan AppendEntriesResponse, 1)}
	select {
	case n.rpcCh <- env:
	case <-n.stopCh:
		return AppendEntriesResponse{}, ErrStopped
	case <-ctx.Done():
		return AppendEntriesResponse{}, ctx.Err()
	}

	select {
	case resp := <-env.appendReply:
		return resp, nil
	case <-ctx.Done():
		return AppendEntriesResponse{}, ctx.Err()
	}
}

// Propose submits a command. It blocks until the entry commits, the
// node loses leadership, or ctx expires. Only the leader accepts
// proposals; followers answer with a leader hint.
func (n *Node) Propose(ctx context.Context, command []byte) (uint64, error) {
	req := proposeRequest{
		command: append([]byte(nil), command...),
		replyCh: make(chan proposeReply, 1),
	}

	select {
	case n.proposeCh <- req:
	case <-n.stopCh:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case reply := <-req.replyCh:
		return reply.index, reply.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SetPeers replaces the peer set (coordinator-fed membership).
func (n *Node) SetPeers(peerIDs []string) {
	ids := make([]string, 0, len(peerIDs))
	for _, id := range peerIDs {
		if id != n.cfg.LocalID {
			ids = append(ids, id)
		}
	}

	select {
	case n.peersCh <- ids:
	case <-n.stopCh:
	}
}

// Status returns a snapshot of the consensus state.
func (n *Node) Status() Status {
	n.statusMu.RLock()
	defer n.statusMu.RUnlock()
	return n.snapshot
}

// Role returns the current role.
func (n *Node) Role() Role { return n.Status().Role }

// Term returns the current term.
func (n *Node) Term() uint64 { return n.Status().Term }

// Leader returns the known leader's ID, empty when unknown.
func (n *Node) Leader() string { return n.Status().LeaderID }

func (n *Node) run() {
	defer close(n.doneCh)

	n.electionTimer = time.NewTimer(n.randomElectionTimeout())
	defer n.electionTimer.Stop()

	heartbeat := time.NewTicker(n.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-n.stopCh:
			n.failPending(ErrStopped)
			return

		case env := <-n.rpcCh:
			if env.vote != nil {
				env.voteReply <- n.handleVote(*env.vote)
			} else {
				env.appendReply <- n.handleAppend(*env.appendReq)
			}
			n.publishStatus()

		case req := <-n.proposeCh:
			n.handlePropose(req)
			n.publishStatus()

		case ids := <-n.peersCh:
			n.applyPeers(ids)
			n.publishStatus()

		case res := <-n.voteRespCh:
			n.handleVoteResult(res)
			n.publishStatus()

		case res := <-n.appendRespCh:
			n.handleAppendResult(res)
			n.publishStatus()

		case <-n.electionTimer.C:
			if n.role != Leader {
				n.startElection()
			}
			n.electionTimer.Reset(n.randomElectionTimeout())
			n.publishStatus()

		case <-heartbeat.C:
			if n.role == Leader {
				n.broadcastAppend()
			}
			n.publishStatus()
		}
	}
}

func (n *Node) randomElectionTimeout() time.Duration {
	spread := n.cfg.ElectionTimeoutMax - n.cfg.ElectionTimeoutMin
	return n.cfg.ElectionTimeoutMin + time.Duration(n.rng.Int63n(int64(spread)))
}

func (n *Node) resetElectionTimer() {
	if !n.electionTimer.Stop() {
		select {
		case <-n.electionTimer.C:
		default:
		}
	}
	n.electionTimer.Reset(n.randomElectionTimeout())
}

func (n *Node) lastIndex() uint64 {
	return uint64(len(n.log))
}

func (n *Node) termAt(index uint64) uint64 {
	if index == 0 || index > n.lastIndex() {
		return 0
	}
	return n.log[index-1].Term
}

func (n *Node) majority() int {
	return (len(n.peers)+1)/2 + 1
}

// stepDown reverts to follower, adopting the higher term.
func (n *Node) stepDown(term uint64) {
	if term > n.currentTerm {
		n.currentTerm = term
		n.votedFor = ""
		n.leaderID = ""
		if err := n.durable.saveTerm(context.Background(), n.currentTerm, n.votedFor); err != nil {
			n.logger.Error("persist term failed", "error", err)
		}
	}

	if n.role != Follower {
		n.logger.Info("stepping down", "term", n.currentTerm, "from", n.role.String())
	}
	n.role = Follower
	n.votes = nil
	n.failPending(fmt.Errorf("%w: leadership lost", domain.ErrNotLeader))
}

func (n *Node) failPending(err error) {
	for index, ch := range n.pending {
		ch <- proposeReply{err: err}
		delete(n.pending, index)
	}
	if len(n.pending) == 0 {
		n.pending = make(map[uint64]chan proposeReply)
	}
}

func (n *Node) applyPeers(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
		if _, known := n.peers[id]; !known && n.role == Leader {
			n.nextIndex[id] = n.lastIndex() + 1
			n.matchIndex[id] = 0
			n.lastAck[id] = time.Now()
		}
	}
	for id := range n.peers {
		if _, still := next[id]; !still {
			delete(n.nextIndex, id)
			delete(n.matchIndex, id)
			delete(n.lastAck, id)
		}
	}
	n.peers = next
}

// handleVote answers an inbound RequestVote.
func (n *Node) handleVote(req RequestVoteRequest) RequestVoteResponse {
	if req.Term < n.currentTerm {
		// The reply's higher term tells the candidate to step down
		n.logger.Debug("vote rejected",
			"candidate", req.CandidateID,
			"term", req.Term,
			"current_term", n.currentTerm,
			"error", domain.ErrStaleTerm)
		return RequestVoteResponse{Term: n.currentTerm, VoteGranted: false}
	}
	if req.Term > n.currentTerm {
		n.stepDown(req.Term)
	}

	upToDate := req.LastLogTerm > n.termAt(n.lastIndex()) ||
		(req.LastLogTerm == n.termAt(n.lastIndex()) && req.LastLogIndex >= n.lastIndex())

	if (n.votedFor == "" || n.votedFor == req.CandidateID) && upToDate {
		n.votedFor = req.CandidateID
		if err := n.durable.saveTerm(context.Background(), n.currentTerm, n.votedFor); err != nil {
			n.logger.Error("persist vote failed", "error", err)
			return RequestVoteResponse{Term: n.currentTerm, VoteGranted: false}
		}
		n.resetElectionTimer()
		n.logger.Debug("vote granted", "candidate", req.CandidateID, "term", req.Term)
		return RequestVoteResponse{Term: n.currentTerm, VoteGranted: true}
	}

	return RequestVoteResponse{Term: n.currentTerm, VoteGranted: false}
}

// handleAppend answers an inbound AppendEntries.
func (n *Node) handleAppend(req AppendEntriesRequest) AppendEntriesResponse {
	if req.Term < n.currentTerm {
		n.logger.Debug("append rejected",
			"leader", req.LeaderID,
			"term", req.Term,
			"current_term", n.currentTerm,
			"error", domain.ErrStaleTerm)
		return AppendEntriesResponse{Term: n.currentTerm, Success: false}
	}
	if req.Term > n.currentTerm || n.role != Follower {
		n.stepDown(req.Term)
	}
	n.leaderID = req.LeaderID
	n.resetElectionTimer()

	// prevLog consistency check: on mismatch the follower answers
	// false and the leader walks nextIndex back to backfill
	if req.PrevLogIndex > 0 {
		if req.PrevLogIndex > n.lastIndex() || n.termAt(req.PrevLogIndex) != req.PrevLogTerm {
			n.logger.Debug("append rejected on log mismatch",
				"prev_index", req.PrevLogIndex,
				"prev_term", req.PrevLogTerm,
				"last_index", n.lastIndex())
			return AppendEntriesResponse{Term: n.currentTerm, Success: false}
		}
	}

	// Append entries, truncating any conflicting suffix
	var fresh []LogEntry
	for _, entry := range req.Entries {
		switch {
		case entry.Index <= n.lastIndex() && n.termAt(entry.Index) == entry.Term:
			// Already have it
		case entry.Index <= n.lastIndex():
			// Conflict: drop our uncommitted suffix
			if err := n.durable.truncateFrom(context.Background(), entry.Index, n.lastIndex()); err != nil {
				n.logger.Error("truncate log failed", "error", err)
				return AppendEntriesResponse{Term: n.currentTerm, Success: false}
			}
			n.log = n.log[:entry.Index-1]
			n.log = append(n.log, entry)
			fresh = append(fresh, entry)
		default:
			n.log = append(n.log, entry)
			fresh = append(fresh, entry)
		}
	}
	if len(fresh) > 0 {
		if err := n.durable.appendEntries(context.Background(), fresh); err != nil {
			n.logger.Error("persist log entries failed", "error", err)
			return AppendEntriesResponse{Term: n.currentTerm, Success: false}
		}
	}

	if req.LeaderCommit > n.commitIndex {
		n.commitIndex = min(req.LeaderCommit, n.lastIndex())
		n.applyCommitted()
	}

	return AppendEntriesResponse{Term: n.currentTerm, Success: true}
}

func (n *Node) handlePropose(req proposeRequest) {
	if n.role != Leader {
		var err error = domain.ErrNoLeader
		if n.leaderID != "" {
			err = fmt.Errorf("%w: current leader is %s", domain.ErrNotLeader, n.leaderID)
		}
		if n.cfg.Metrics != nil {
			n.cfg.Metrics.Proposals.WithLabelValues("rejected").Inc()
		}
		req.replyCh <- proposeReply{err: err}
		return
	}

	if !n.quorumReachable() {
		// Read-only degraded mode: strong writes are refused
		if n.cfg.Metrics != nil {
			n.cfg.Metrics.Proposals.WithLabelValues("rejected").Inc()
		}
		req.replyCh <- proposeReply{err: fmt.Errorf("%w: majority unreachable", domain.ErrNoQuorum)}
		return
	}

	entry := LogEntry{
		Term:    n.currentTerm,
		Index:   n.lastIndex() + 1,
		Command: req.command,
	}
	if err := n.durable.appendEntries(context.Background(), []LogEntry{entry}); err != nil {
		req.replyCh <- proposeReply{err: fmt.Errorf("persist proposal: %w", err)}
		return
	}
	n.log = append(n.log, entry)
	n.pending[entry.Index] = req.replyCh

	// Single-node group commits immediately; otherwise replicate now
	if len(n.peers) == 0 {
		n.advanceCommit()
	} else {
		n.broadcastAppend()
	}
}

func (n *Node) startElection() {
	n.role = Candidate
	n.currentTerm++
	n.votedFor = n.cfg.LocalID
	n.leaderID = ""
	n.votes = map[string]bool{n.cfg.LocalID: true}

	if err := n.durable.saveTerm(context.Background(), n.currentTerm, n.votedFor); err != nil {
		n.logger.Error("persist term failed", "error", err)
		return
	}

	n.logger.Info("starting election", "term", n.currentTerm)
	if n.cfg.Metrics != nil {
		n.cfg.Metrics.Elections.Inc()
	}

	if len(n.votes) >= n.majority() {
		n.becomeLeader()
		return
	}

	req := RequestVoteRequest{
		Term:         n.currentTerm,
		CandidateID:  n.cfg.LocalID,
		LastLogIndex: n.lastIndex(),
		LastLogTerm:  n.termAt(n.lastIndex()),
	}

	for peer := range n.peers {
		go func(peerID string, term uint64) {
			ctx, cancel := context.WithTimeout(context.Background(), n.cfg.ElectionTimeoutMin)
			defer cancel()

			resp, err := n.cfg.Transport.RequestVote(ctx, peerID, req)
			select {
			case n.voteRespCh <- voteResult{peerID: peerID, term: term, resp: resp, err: err}:
			case <-n.stopCh:
			}
		}(peer, n.currentTerm)
	}
}

func (n *Node) handleVoteResult(res voteResult) {
	if res.err != nil {
		n.logger.Debug("vote request failed", "peer", res.peerID, "error", res.err)
		return
	}
	if res.resp.Term > n.currentTerm {
		n.stepDown(res.resp.Term)
		return
	}
	if n.role != Candidate || res.term != n.currentTerm || !res.resp.VoteGranted {
		return
	}

	n.votes[res.peerID] = true
	if len(n.votes) >= n.majority() {
		n.becomeLeader()
	}
}

func (n *Node) becomeLeader() {
	n.role = Leader
	n.leaderID = n.cfg.LocalID
	n.votes = nil

	now := time.Now()
	for peer := range n.peers {
		n.nextIndex[peer] = n.lastIndex() + 1
		n.matchIndex[peer] = 0
		n.lastAck[peer] = now
	}

	n.logger.Info("elected leader", "term", n.currentTerm, "last_index", n.lastIndex())
	n.broadcastAppend()
}

func (n *Node) broadcastAppend() {
	for peer := range n.peers {
		n.sendAppend(peer)
	}
}

func (n *Node) sendAppend(peerID string) {
	next := n.nextIndex[peerID]
	if next == 0 {
		next = 1
	}
	prevIndex := next - 1

	var entries []LogEntry
	if next <= n.lastIndex() {
		entries = append(entries, n.log[next-1:]...)
	}

	req := AppendEntriesRequest{
		Term:         n.currentTerm,
		LeaderID:     n.cfg.LocalID,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  n.termAt(prevIndex),
		Entries:      entries,
		LeaderCommit: n.commitIndex,
	}

	go func(term uint64) {
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.ElectionTimeoutMin)
		defer cancel()

		resp, err := n.cfg.Transport.AppendEntries(ctx, peerID, req)
		select {
		case n.appendRespCh <- appendResult{
			peerID:    peerID,
			term:      term,
			prevIndex: prevIndex,
			count:     len(entries),
			resp:      resp,
			err:       err,
		}:
		case <-n.stopCh:
		}
	}(n.currentTerm)
}

func (n *Node) handleAppendResult(res appendResult) {
	if res.err != nil {
		// Unreachable for this call only; the next heartbeat retries
		n.logger.Debug("append failed", "peer", res.peerID, "error", res.err)
		return
	}
	if res.resp.Term > n.currentTerm {
		n.stepDown(res.resp.Term)
		return
	}
	if n.role != Leader || res.term != n.currentTerm {
		return
	}

	n.lastAck[res.peerID] = time.Now()

	if res.resp.Success {
		match := res.prevIndex + uint64(res.count)
		if match > n.matchIndex[res.peerID] {
			n.matchIndex[res.peerID] = match
		}
		n.nextIndex[res.peerID] = match + 1
		n.advanceCommit()
		return
	}

	// Log mismatch: walk back and backfill immediately
	if n.nextIndex[res.peerID] > 1 {
		n.nextIndex[res.peerID]--
	}
	n.sendAppend(res.peerID)
}

// advanceCommit commits entries acknowledged by a majority, in index
// order, restricted to the current term.
func (n *Node) advanceCommit() {
	for idx := n.commitIndex + 1; idx <= n.lastIndex(); idx++ {
		if n.termAt(idx) != n.currentTerm {
			continue
		}

		acks := 1 // self
		for peer := range n.peers {
			if n.matchIndex[peer] >= idx {
				acks++
			}
		}
		if acks < n.majority() {
			break
		}
		n.commitIndex = idx
	}
	n.applyCommitted()
}

// applyCommitted hands committed entries to Apply in strict order and
// resolves their pending proposals.
func (n *Node) applyCommitted() {
	for n.lastApplied < n.commitIndex {
		n.lastApplied++
		entry := n.log[n.lastApplied-1]

		if n.cfg.Apply != nil {
			n.cfg.Apply(entry)
		}

		if ch, ok := n.pending[entry.Index]; ok {
			ch <- proposeReply{index: entry.Index}
			delete(n.pending, entry.Index)
			if n.cfg.Metrics != nil {
				n.cfg.Metrics.Proposals.WithLabelValues("committed").Inc()
			}
		}
	}
}

// quorumReachable reports whether a majority answered recently. Only
// meaningful on the leader.
func (n *Node) quorumReachable() bool {
	if len(n.peers) == 0 {
		return true
	}

	window := 2 * n.cfg.ElectionTimeoutMax
	now := time.Now()

	reachable := 1 // self
	for peer := range n.peers {
		if ack, ok := n.lastAck[peer]; ok && now.Sub(ack) <= window {
			reachable++
		}
	}
	return reachable >= n.majority()
}

func (n *Node) publishStatus() {
	degraded := false
	switch n.role {
	case Leader:
		degraded = !n.quorumReachable()
	default:
		degraded = n.leaderID == ""
	}

	status := Status{
		Role:        n.role,
		Term:        n.currentTerm,
		LeaderID:    n.leaderID,
		CommitIndex: n.commitIndex,
		LastIndex:   n.lastIndex(),
		Degraded:    degraded,
	}

	n.statusMu.Lock()
	n.snapshot = status
	n.statusMu.Unlock()

	if n.cfg.Metrics != nil {
		n.cfg.Metrics.RaftTerm.Set(float64(status.Term))
		n.cfg.Metrics.RaftRole.Set(float64(status.Role))
		n.cfg.Metrics.RaftCommitIdx.Set(float64(status.CommitIndex))
	}
}
