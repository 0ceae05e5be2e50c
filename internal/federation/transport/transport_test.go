package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yndnr/memmesh-go/internal/federation/consensus"
	"github.com/yndnr/memmesh-go/internal/federation/domain"
	"github.com/yndnr/memmesh-go/internal/federation/gossip"
	"github.com/yndnr/memmesh-go/pkg/seal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConsensus struct {
	lastVote   consensus.RequestVoteRequest
	lastAppend consensus.AppendEntriesRequest
}

func (f *fakeConsensus) HandleRequestVote(_ context.Context, req consensus.RequestVoteRequest) (consensus.RequestVoteResponse, error) {
	f.lastVote = req
	return consensus.RequestVoteResponse{Term: req.Term, VoteGranted: true}, nil
}

func (f *fakeConsensus) HandleAppendEntries(_ context.Context, req consensus.AppendEntriesRequest) (consensus.AppendEntriesResponse, error) {
	f.lastAppend = req
	return consensus.AppendEntriesResponse{Term: req.Term, Success: true}, nil
}

type fakeGossip struct {
	panicOn  gossip.Kind
	received []gossip.Message
}

func (f *fakeGossip) HandleMessage(_ context.Context, msg gossip.Message) (*gossip.Message, error) {
	if msg.Kind == f.panicOn && f.panicOn != "" {
		panic("handler exploded")
	}
	f.received = append(f.received, msg)
	if msg.Kind == gossip.KindPing {
		return &gossip.Message{Kind: gossip.KindPong, Origin: "mmnode-srv"}, nil
	}
	return nil, nil
}

type fakeHeartbeats struct {
	lastNode string
	lastLoad float64
	err      error
}

func (f *fakeHeartbeats) Heartbeat(nodeID string, load float64) error {
	if f.err != nil {
		return f.err
	}
	f.lastNode = nodeID
	f.lastLoad = load
	return nil
}

type fixture struct {
	consensus  *fakeConsensus
	gossip     *fakeGossip
	heartbeats *fakeHeartbeats
	server     *httptest.Server
	client     *Client
}

func newFixture(t *testing.T, clientSealer, serverSealer *seal.Sealer) *fixture {
	t.Helper()

	f := &fixture{
		consensus:  &fakeConsensus{},
		gossip:     &fakeGossip{},
		heartbeats: &fakeHeartbeats{},
	}

	srv := NewServer(ServerConfig{
		LocalID:    "mmnode-srv",
		Consensus:  f.consensus,
		Gossip:     f.gossip,
		Heartbeats: f.heartbeats,
		Sealer:     serverSealer,
		Logger:     discardLogger(),
	})
	f.server = httptest.NewServer(srv.Handler())
	t.Cleanup(f.server.Close)

	addr := strings.TrimPrefix(f.server.URL, "http://")
	f.client = NewClient(ClientConfig{
		LocalID: "mmnode-cli",
		Resolve: func(peerID string) (string, bool) {
			if peerID == "mmnode-srv" {
				return addr, true
			}
			return "", false
		},
		Sealer: clientSealer,
		Logger: discardLogger(),
	})
	return f
}

func TestRequestVoteRoundTrip(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, err := f.client.RequestVote(context.Background(), "mmnode-srv", consensus.RequestVoteRequest{
		Term:         7,
		CandidateID:  "mmnode-cli",
		LastLogIndex: 42,
		LastLogTerm:  6,
	})
	if err != nil {
		t.Fatalf("RequestVote: %v", err)
	}
	if !resp.VoteGranted || resp.Term != 7 {
		t.Fatalf("resp = %+v", resp)
	}
	if f.consensus.lastVote.LastLogIndex != 42 {
		t.Fatalf("server saw LastLogIndex = %d, want 42", f.consensus.lastVote.LastLogIndex)
	}
}

func TestAppendEntriesRoundTrip(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, err := f.client.AppendEntries(context.Background(), "mmnode-srv", consensus.AppendEntriesRequest{
		Term:     3,
		LeaderID: "mmnode-cli",
		Entries: []consensus.LogEntry{
			{Term: 3, Index: 1, Command: []byte("set x 1")},
		},
		LeaderCommit: 1,
	})
	if err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	if len(f.consensus.lastAppend.Entries) != 1 || string(f.consensus.lastAppend.Entries[0].Command) != "set x 1" {
		t.Fatalf("server saw entries = %+v", f.consensus.lastAppend.Entries)
	}
}

func TestUnknownPeer(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.client.RequestVote(context.Background(), "mmnode-ghost", consensus.RequestVoteRequest{Term: 1})
	if !errors.Is(err, domain.ErrPeerUnreachable) {
		t.Fatalf("err = %v, want ErrPeerUnreachable", err)
	}
}

func TestHeartbeat(t *testing.T) {
	f := newFixture(t, nil, nil)
	addr := strings.TrimPrefix(f.server.URL, "http://")

	if err := f.client.Heartbeat(context.Background(), addr, 0.42); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if f.heartbeats.lastNode != "mmnode-cli" {
		t.Fatalf("server saw node = %s, want mmnode-cli", f.heartbeats.lastNode)
	}
	if f.heartbeats.lastLoad != 0.42 {
		t.Fatalf("server saw load = %v, want 0.42", f.heartbeats.lastLoad)
	}
}

func TestHeartbeatUnknownNode(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.heartbeats.err = domain.ErrNodeNotFound
	addr := strings.TrimPrefix(f.server.URL, "http://")

	err := f.client.Heartbeat(context.Background(), addr, 0.1)
	if !errors.Is(err, domain.ErrNodeNotFound) {
		t.Fatalf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestGossipPushAndPing(t *testing.T) {
	f := newFixture(t, nil, nil)
	addr := strings.TrimPrefix(f.server.URL, "http://")
	peer := gossip.Peer{ID: "mmnode-srv", Addr: addr}

	// PUSH has no reply body.
	reply, err := f.client.Send(context.Background(), peer, gossip.Message{
		ID:     "m1",
		Kind:   gossip.KindPush,
		Origin: "mmnode-cli",
		TTL:    3,
	})
	if err != nil {
		t.Fatalf("Send PUSH: %v", err)
	}
	if reply != nil {
		t.Fatalf("PUSH reply = %+v, want nil", reply)
	}

	// PING comes back as PONG.
	reply, err = f.client.Send(context.Background(), peer, gossip.Message{
		ID:     "m2",
		Kind:   gossip.KindPing,
		Origin: "mmnode-cli",
	})
	if err != nil {
		t.Fatalf("Send PING: %v", err)
	}
	if reply == nil || reply.Kind != gossip.KindPong {
		t.Fatalf("PING reply = %+v, want PONG", reply)
	}

	if len(f.gossip.received) != 2 {
		t.Fatalf("server received %d messages, want 2", len(f.gossip.received))
	}
}

func TestSealedRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, seal.KeySize)
	clientSealer, err := seal.New(key)
	if err != nil {
		t.Fatalf("seal.New: %v", err)
	}
	serverSealer, err := seal.New(key)
	if err != nil {
		t.Fatalf("seal.New: %v", err)
	}

	f := newFixture(t, clientSealer, serverSealer)

	resp, err := f.client.RequestVote(context.Background(), "mmnode-srv", consensus.RequestVoteRequest{
		Term:        5,
		CandidateID: "mmnode-cli",
	})
	if err != nil {
		t.Fatalf("sealed RequestVote: %v", err)
	}
	if !resp.VoteGranted {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestSealedRejectsWrongKey(t *testing.T) {
	clientSealer, _ := seal.New(bytes.Repeat([]byte{1}, seal.KeySize))
	serverSealer, _ := seal.New(bytes.Repeat([]byte{2}, seal.KeySize))

	f := newFixture(t, clientSealer, serverSealer)

	_, err := f.client.RequestVote(context.Background(), "mmnode-srv", consensus.RequestVoteRequest{Term: 1})
	if !errors.Is(err, domain.ErrIdentityRejected) {
		t.Fatalf("err = %v, want ErrIdentityRejected", err)
	}
}

func TestSealedRejectsPlaintextSender(t *testing.T) {
	serverSealer, _ := seal.New(bytes.Repeat([]byte{3}, seal.KeySize))
	f := newFixture(t, nil, serverSealer)

	_, err := f.client.RequestVote(context.Background(), "mmnode-srv", consensus.RequestVoteRequest{Term: 1})
	if !errors.Is(err, domain.ErrIdentityRejected) {
		t.Fatalf("err = %v, want ErrIdentityRejected", err)
	}
}

func TestUnreachablePeerAfterRetries(t *testing.T) {
	f := newFixture(t, nil, nil)
	addr := strings.TrimPrefix(f.server.URL, "http://")
	f.server.Close()

	err := f.client.Heartbeat(context.Background(), addr, 0.5)
	if !errors.Is(err, domain.ErrPeerUnreachable) {
		t.Fatalf("err = %v, want ErrPeerUnreachable", err)
	}
}

func TestPanicRecoveryAndRequestID(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.gossip.panicOn = gossip.KindPush

	body, _, err := encodeBody(gossip.Message{Kind: gossip.KindPush}, nil, "mmnode-cli")
	if err != nil {
		t.Fatalf("encodeBody: %v", err)
	}

	resp, err := http.Post(f.server.URL+PathGossip, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if resp.Header.Get("X-Error-Code") != "MM-SYS-5000" {
		t.Fatalf("error code = %s", resp.Header.Get("X-Error-Code"))
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("response carries no request ID")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, err := http.Get(f.server.URL + PathHeartbeat)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestGetRequestIDFromContext(t *testing.T) {
	if got := GetRequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("empty context yielded %q", got)
	}

	ctx := context.WithValue(context.Background(), ContextKeyRequestID, "req-42")
	if got := GetRequestIDFromContext(ctx); got != "req-42" {
		t.Fatalf("got %q, want req-42", got)
	}
}
