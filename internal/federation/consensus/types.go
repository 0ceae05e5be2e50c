package consensus

import (
	"context"
	"fmt"
)

// Role is a node's consensus role.
type Role int

const (
	// Follower is the initial role; it accepts entries from the leader.
	Follower Role = iota

	// Candidate is soliciting votes after an election timeout.
	Candidate

	// Leader replicates the log and serves proposals.
	Leader
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// LogEntry is one replicated command.
//
// Entries are immutable once committed; they are only appended or
// truncated away while still uncommitted on a diverged follower.
type LogEntry struct {
	// Term is the leader term that created the entry.
	Term uint64 `json:"term"`

	// Index is the entry's position, starting at 1.
	Index uint64 `json:"index"`

	// Command is the opaque payload handed to Apply on commit.
	Command []byte `json:"command"`
}

// RequestVoteRequest solicits one vote.
type RequestVoteRequest struct {
	Term         uint64 `json:"term"`
	CandidateID  string `json:"candidate_id"`
	LastLogIndex uint64 `json:"last_log_index"`
	LastLogTerm  uint64 `json:"last_log_term"`
}

// RequestVoteResponse answers a vote solicitation.
type RequestVoteResponse struct {
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"vote_granted"`
}

// AppendEntriesRequest replicates entries (empty for heartbeats).
type AppendEntriesRequest struct {
	Term         uint64     `json:"term"`
	LeaderID     string     `json:"leader_id"`
	PrevLogIndex uint64     `json:"prev_log_index"`
	PrevLogTerm  uint64     `json:"prev_log_term"`
	Entries      []LogEntry `json:"entries,omitempty"`
	LeaderCommit uint64     `json:"leader_commit"`
}

// AppendEntriesResponse acknowledges replication.
type AppendEntriesResponse struct {
	Term    uint64 `json:"term"`
	Success bool   `json:"success"`
}

// Transport carries consensus RPCs to peers, addressed by node ID.
type Transport interface {
	RequestVote(ctx context.Context, peerID string, req RequestVoteRequest) (RequestVoteResponse, error)
	AppendEntries(ctx context.Context, peerID string, req AppendEntriesRequest) (AppendEntriesResponse, error)
}

// Status is a point-in-time snapshot of the consensus state.
type Status struct {
	Role        Role   `json:"role"`
	Term        uint64 `json:"term"`
	LeaderID    string `json:"leader_id,omitempty"`
	CommitIndex uint64 `json:"commit_index"`
	LastIndex   uint64 `json:"last_index"`

	// Degraded is set while no quorum is reachable; proposals are
	// rejected until it clears.
	Degraded bool `json:"degraded"`
}
