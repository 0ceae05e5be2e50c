package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/yndnr/memmesh-go/pkg/seal"
)

// Endpoint paths.
const (
	PathRaftVote   = "/v1/raft/vote"
	PathRaftAppend = "/v1/raft/append"
	PathHeartbeat  = "/v1/heartbeat"
	PathGossip     = "/v1/gossip"
	PathSync       = "/v1/sync"
)

// headerNodeID declares the sender; sealed payloads are bound to it.
const headerNodeID = "X-MemMesh-Node"

const maxBodySize = 32 << 20

// HeartbeatRequest reports liveness and load to a peer's coordinator.
type HeartbeatRequest struct {
	NodeID string  `json:"node_id"`
	Load   float64 `json:"load"`
}

// HeartbeatResponse acknowledges a heartbeat.
type HeartbeatResponse struct {
	OK bool `json:"ok"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// encodeBody marshals v, sealing it when a sealer is configured.
func encodeBody(v any, sealer *seal.Sealer, senderID string) ([]byte, string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("encode body: %w", err)
	}
	if sealer == nil {
		return raw, "application/json", nil
	}

	sealed, err := sealer.Seal(raw, senderID)
	if err != nil {
		return nil, "", fmt.Errorf("seal body: %w", err)
	}
	return sealed, "application/octet-stream", nil
}

// decodeBody reads and unmarshals a request or response body,
// unsealing it when a sealer is configured. The senderID must match
// the identity the payload was sealed under.
func decodeBody(r io.Reader, v any, sealer *seal.Sealer, senderID string) error {
	raw, err := io.ReadAll(io.LimitReader(r, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if sealer != nil {
		raw, err = sealer.Unseal(raw, senderID)
		if err != nil {
			return err
		}
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorPayload{Code: code, Message: message})
}
