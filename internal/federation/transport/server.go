package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yndnr/memmesh-go/internal/federation/consensus"
	"github.com/yndnr/memmesh-go/internal/federation/domain"
	"github.com/yndnr/memmesh-go/internal/federation/gossip"
	"github.com/yndnr/memmesh-go/pkg/seal"
)

// ConsensusHandler is the consensus side of the inbound RPC surface.
type ConsensusHandler interface {
	HandleRequestVote(ctx context.Context, req consensus.RequestVoteRequest) (consensus.RequestVoteResponse, error)
	HandleAppendEntries(ctx context.Context, req consensus.AppendEntriesRequest) (consensus.AppendEntriesResponse, error)
}

// GossipHandler is the gossip side of the inbound RPC surface.
type GossipHandler interface {
	HandleMessage(ctx context.Context, msg gossip.Message) (*gossip.Message, error)
}

// HeartbeatHandler accepts peer heartbeats.
type HeartbeatHandler interface {
	Heartbeat(nodeID string, loadScore float64) error
}

// ServerConfig configures the inbound RPC server.
type ServerConfig struct {
	// LocalID is this node's ID; responses are sealed under it.
	LocalID string

	// Consensus handles raft RPCs. Optional: endpoints answer 503
	// when nil.
	Consensus ConsensusHandler

	// Gossip handles gossip and sync messages.
	Gossip GossipHandler

	// Heartbeats handles peer heartbeats.
	Heartbeats HeartbeatHandler

	// Sealer seals response bodies and unseals requests. Nil disables
	// sealing.
	Sealer *seal.Sealer

	// Logger for logging.
	Logger *slog.Logger
}

// Server answers federation RPCs over HTTP.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger
}

// NewServer creates the inbound RPC server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: cfg.Logger}
}

// Handler returns the routed and middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathRaftVote, s.handleRaftVote)
	mux.HandleFunc(PathRaftAppend, s.handleRaftAppend)
	mux.HandleFunc(PathHeartbeat, s.handleHeartbeat)
	mux.HandleFunc(PathGossip, s.handleGossip)
	mux.HandleFunc(PathSync, s.handleGossip)

	return Chain(mux, RequestID(), Recover(s.logger))
}

// readRequest decodes and, when sealing is on, authenticates the
// request body. A payload that does not unseal under the declared
// sender identity is rejected before any handler logic runs.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "MM-NET-4050", "method not allowed")
		return false
	}

	sender := r.Header.Get(headerNodeID)
	if s.cfg.Sealer != nil && sender == "" {
		writeError(w, http.StatusUnauthorized, domain.ErrIdentityRejected.Code, "sender identity missing")
		return false
	}

	if err := decodeBody(r.Body, v, s.cfg.Sealer, sender); err != nil {
		if errors.Is(err, seal.ErrUnsealFailed) {
			s.logger.Warn("rejected payload with bad identity",
				"request_id", GetRequestIDFromContext(r.Context()),
				"claimed_sender", sender,
				"path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, domain.ErrIdentityRejected.Code, domain.ErrIdentityRejected.Message)
			return false
		}
		writeError(w, http.StatusBadRequest, "MM-NET-4000", err.Error())
		return false
	}
	return true
}

func (s *Server) writeResponse(w http.ResponseWriter, v any) {
	body, contentType, err := encodeBody(v, s.cfg.Sealer, s.cfg.LocalID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "MM-SYS-5000", err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set(headerNodeID, s.cfg.LocalID)
	w.Write(body)
}

func (s *Server) handleRaftVote(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Consensus == nil {
		writeError(w, http.StatusServiceUnavailable, "MM-CONS-5030", "consensus not running")
		return
	}

	var req consensus.RequestVoteRequest
	if !s.readRequest(w, r, &req) {
		return
	}

	resp, err := s.cfg.Consensus.HandleRequestVote(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "MM-CONS-5030", err.Error())
		return
	}
	s.writeResponse(w, resp)
}

func (s *Server) handleRaftAppend(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Consensus == nil {
		writeError(w, http.StatusServiceUnavailable, "MM-CONS-5030", "consensus not running")
		return
	}

	var req consensus.AppendEntriesRequest
	if !s.readRequest(w, r, &req) {
		return
	}

	resp, err := s.cfg.Consensus.HandleAppendEntries(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "MM-CONS-5030", err.Error())
		return
	}
	s.writeResponse(w, resp)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Heartbeats == nil {
		writeError(w, http.StatusServiceUnavailable, "MM-COOR-5030", "coordinator not running")
		return
	}

	var req HeartbeatRequest
	if !s.readRequest(w, r, &req) {
		return
	}

	if err := s.cfg.Heartbeats.Heartbeat(req.NodeID, req.Load); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrNodeNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, domain.ErrorCode(err), err.Error())
		return
	}
	s.writeResponse(w, HeartbeatResponse{OK: true})
}

func (s *Server) handleGossip(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Gossip == nil {
		writeError(w, http.StatusServiceUnavailable, "MM-NET-5030", "gossip not running")
		return
	}

	var msg gossip.Message
	if !s.readRequest(w, r, &msg) {
		return
	}

	reply, err := s.cfg.Gossip.HandleMessage(r.Context(), msg)
	if err != nil {
		writeError(w, http.StatusBadRequest, "MM-NET-4000", err.Error())
		return
	}
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeResponse(w, reply)
}
