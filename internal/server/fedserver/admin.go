package fedserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
	"github.com/yndnr/memmesh-go/internal/federation/transport"
)

const adminKVPrefix = "/v1/admin/kv/"

// buildHandler mounts the inter-node RPC endpoints next to the admin
// and observability surface on the single RPC listener.
func (n *Node) buildHandler(rpc http.Handler) http.Handler {
	mux := http.NewServeMux()

	for _, path := range []string{
		transport.PathRaftVote,
		transport.PathRaftAppend,
		transport.PathHeartbeat,
		transport.PathGossip,
		transport.PathSync,
	} {
		mux.Handle(path, rpc)
	}

	mux.HandleFunc("/v1/admin/status", n.handleStatus)
	mux.HandleFunc("/v1/admin/members", n.handleMembers)
	mux.HandleFunc("/v1/admin/select", n.handleSelect)
	mux.HandleFunc(adminKVPrefix, n.handleKV)
	mux.HandleFunc("/health", n.handleHealth)
	mux.Handle("/metrics", n.metrics.Handler())

	return transport.Chain(mux,
		transport.RequestID(),
		transport.Recover(n.logger),
	)
}

func (n *Node) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, n.Status())
}

func (n *Node) handleMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, n.Members())
}

func (n *Node) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	algorithm := r.URL.Query().Get("algorithm")
	if algorithm == "" {
		algorithm = "round_robin"
	}

	desc, err := n.Select(algorithm)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// kvValue is the admin KV read/write body.
type kvValue struct {
	Value []byte `json:"value"`
}

// handleKV serves the replicated key-value surface. The default
// keyspace is the eventually consistent CRDT store; ?consistency=strong
// routes through the consensus group instead.
func (n *Node) handleKV(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, adminKVPrefix)
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}
	strong := r.URL.Query().Get("consistency") == "strong"

	switch r.Method {
	case http.MethodGet:
		var (
			value []byte
			err   error
		)
		if strong {
			value, err = n.StrongGet(r.Context(), key)
		} else {
			value, err = n.Get(key)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, kvValue{Value: value})

	case http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		var in kvValue
		if err := json.Unmarshal(body, &in); err != nil {
			// Raw bodies are accepted as the value itself.
			in.Value = body
		}

		if strong {
			err = n.StrongPut(r.Context(), key, in.Value)
		} else {
			err = n.Put(key, in.Value)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		var err error
		if strong {
			err = n.StrongDelete(r.Context(), key)
		} else {
			err = n.Delete(key)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (n *Node) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := n.Status()
	code := http.StatusOK
	if st.Degraded {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":      healthWord(st.Degraded),
		"node_id":     st.NodeID,
		"role":        st.Role,
		"replication": st.Replication,
	})
}

func healthWord(degraded bool) string {
	if degraded {
		return "degraded"
	}
	return "ok"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeDomainError maps a domain error onto an HTTP status and carries
// the error code in the X-Error-Code header.
func writeDomainError(w http.ResponseWriter, err error) {
	code := domain.ErrorCode(err)
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrKeyNotFound),
		errors.Is(err, domain.ErrNodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotLeader),
		errors.Is(err, domain.ErrNoLeader),
		errors.Is(err, domain.ErrNoQuorum),
		errors.Is(err, domain.ErrNoHealthyNodes),
		errors.Is(err, domain.ErrPeerUnreachable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUnknownAlgorithm):
		status = http.StatusBadRequest
	}

	w.Header().Set("X-Error-Code", code)
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": err.Error(),
	})
}
