package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/consensus"
	"github.com/yndnr/memmesh-go/internal/federation/domain"
	"github.com/yndnr/memmesh-go/internal/federation/gossip"
	"github.com/yndnr/memmesh-go/pkg/seal"
)

const (
	defaultCallTimeout  = 2 * time.Second
	defaultRetryBackoff = 50 * time.Millisecond
	defaultMaxRetries   = 2
)

// ClientConfig configures the outbound RPC client.
type ClientConfig struct {
	// LocalID is this node's ID; requests are sealed under it.
	LocalID string

	// Resolve maps a peer ID to its RPC address. Used when a call
	// site only knows the ID (consensus peers).
	Resolve func(peerID string) (addr string, ok bool)

	// Sealer seals request bodies and unseals responses. Nil
	// disables sealing.
	Sealer *seal.Sealer

	// CallTimeout bounds each attempt.
	CallTimeout time.Duration

	// MaxRetries is how many times idempotent calls are retried
	// with exponential backoff.
	MaxRetries int

	// HTTPClient is optional; a default client is used when nil.
	HTTPClient *http.Client

	// Logger for logging.
	Logger *slog.Logger
}

// Client issues federation RPCs. It implements consensus.Transport
// and gossip.Transport.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates an RPC client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{cfg: cfg, http: cfg.HTTPClient, logger: cfg.Logger}
}

// RequestVote implements consensus.Transport. Raft calls are not
// retried here: the consensus actor owns its own retry cadence.
func (c *Client) RequestVote(ctx context.Context, peerID string, req consensus.RequestVoteRequest) (consensus.RequestVoteResponse, error) {
	var resp consensus.RequestVoteResponse
	addr, ok := c.resolve(peerID)
	if !ok {
		return resp, domain.ErrPeerUnreachable.WithDetails("unknown peer " + peerID)
	}
	err := c.call(ctx, addr, PathRaftVote, req, &resp, 0)
	return resp, err
}

// AppendEntries implements consensus.Transport.
func (c *Client) AppendEntries(ctx context.Context, peerID string, req consensus.AppendEntriesRequest) (consensus.AppendEntriesResponse, error) {
	var resp consensus.AppendEntriesResponse
	addr, ok := c.resolve(peerID)
	if !ok {
		return resp, domain.ErrPeerUnreachable.WithDetails("unknown peer " + peerID)
	}
	err := c.call(ctx, addr, PathRaftAppend, req, &resp, 0)
	return resp, err
}

// Heartbeat reports liveness and load to a peer. Idempotent, so
// retried with backoff.
func (c *Client) Heartbeat(ctx context.Context, peerAddr string, load float64) error {
	var resp HeartbeatResponse
	req := HeartbeatRequest{NodeID: c.cfg.LocalID, Load: load}
	return c.call(ctx, peerAddr, PathHeartbeat, req, &resp, c.cfg.MaxRetries)
}

// Send implements gossip.Transport. Gossip messages are idempotent by
// message-ID dedupe, so delivery is retried with backoff.
func (c *Client) Send(ctx context.Context, peer gossip.Peer, msg gossip.Message) (*gossip.Message, error) {
	addr := peer.Addr
	if addr == "" {
		var ok bool
		if addr, ok = c.resolve(peer.ID); !ok {
			return nil, domain.ErrPeerUnreachable.WithDetails("unknown peer " + peer.ID)
		}
	}

	path := PathGossip
	if msg.Kind == gossip.KindSync {
		path = PathSync
	}

	var reply gossip.Message
	found, err := c.callMaybe(ctx, addr, path, msg, &reply, c.cfg.MaxRetries)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &reply, nil
}

func (c *Client) resolve(peerID string) (string, bool) {
	if c.cfg.Resolve == nil {
		return "", false
	}
	return c.cfg.Resolve(peerID)
}

// call posts req to addr+path and decodes the response into resp,
// retrying transport failures up to retries times.
func (c *Client) call(ctx context.Context, addr, path string, req, resp any, retries int) error {
	_, err := c.callMaybe(ctx, addr, path, req, resp, retries)
	return err
}

// callMaybe is call, reporting whether the peer sent a body at all
// (204 responses carry none).
func (c *Client) callMaybe(ctx context.Context, addr, path string, req, resp any, retries int) (bool, error) {
	body, contentType, err := encodeBody(req, c.cfg.Sealer, c.cfg.LocalID)
	if err != nil {
		return false, err
	}

	backoff := defaultRetryBackoff
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return false, ctx.Err()
			}
			backoff *= 2
		}

		found, err := c.attempt(ctx, addr, path, body, contentType, resp)
		if err == nil {
			return found, nil
		}
		lastErr = err

		// Only transport-level failures are worth retrying
		if !domain.IsDomainError(err, domain.ErrPeerUnreachable.Code) {
			return false, err
		}
	}
	return false, lastErr
}

func (c *Client) attempt(ctx context.Context, addr, path string, body []byte, contentType string, resp any) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	url := "http://" + addr + path
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set(headerNodeID, c.cfg.LocalID)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return false, domain.ErrPeerUnreachable.WithCause(err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusNoContent:
		io.Copy(io.Discard, httpResp.Body)
		return false, nil

	case httpResp.StatusCode >= 400:
		return false, decodeErrorResponse(httpResp)

	default:
		sender := httpResp.Header.Get(headerNodeID)
		if err := decodeBody(httpResp.Body, resp, c.cfg.Sealer, sender); err != nil {
			if errors.Is(err, seal.ErrUnsealFailed) {
				return false, domain.ErrIdentityRejected.WithDetails("response from " + addr)
			}
			return false, fmt.Errorf("decode response from %s: %w", addr, err)
		}
		return true, nil
	}
}

// decodeErrorResponse maps a structured error body back onto the
// matching domain error.
func decodeErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))

	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Code == "" {
		return &domain.DomainError{
			Code:    "MM-NET-5000",
			Message: fmt.Sprintf("peer returned status %d", resp.StatusCode),
		}
	}
	return &domain.DomainError{Code: payload.Code, Message: payload.Message}
}
