package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
)

const (
	probeMagic   = "memmesh-probe-v1"
	replyMagic   = "memmesh-reply-v1"
	probeTimeout = 2 * time.Second
)

// probePacket is the broadcast probe payload.
type probePacket struct {
	Magic  string `json:"magic"`
	NodeID string `json:"node_id"`
}

// replyPacket is a responder's answer to a probe.
type replyPacket struct {
	Magic      string `json:"magic"`
	NodeID     string `json:"node_id"`
	RPCAddr    string `json:"rpc_addr"`
	Capability string `json:"capability,omitempty"`
}

// BroadcastSource probes the local network segment over UDP broadcast.
type BroadcastSource struct {
	localID string
	port    int
	logger  *slog.Logger
}

// NewBroadcastSource creates a local broadcast source.
func NewBroadcastSource(localID string, port int, logger *slog.Logger) *BroadcastSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &BroadcastSource{localID: localID, port: port, logger: logger}
}

// Name implements Source.
func (s *BroadcastSource) Name() string { return domain.SourceBroadcast.String() }

// Priority implements Source.
func (s *BroadcastSource) Priority() int { return domain.SourceBroadcast.Priority() }

// Discover implements Source. It sends one probe and collects replies
// until the probe window closes.
func (s *BroadcastSource) Discover(ctx context.Context) ([]domain.DiscoveryRecord, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("open probe socket: %w", err)
	}
	defer conn.Close()

	probe, err := json.Marshal(probePacket{Magic: probeMagic, NodeID: s.localID})
	if err != nil {
		return nil, fmt.Errorf("encode probe: %w", err)
	}

	dest := &net.UDPAddr{IP: net.IPv4bcast, Port: s.port}
	if _, err := conn.WriteToUDP(probe, dest); err != nil {
		return nil, fmt.Errorf("send probe: %w", err)
	}

	deadline := time.Now().Add(probeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set probe deadline: %w", err)
	}

	now := time.Now()
	var records []domain.DiscoveryRecord
	buf := make([]byte, 1024)

	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break // probe window closed
			}
			return records, fmt.Errorf("read probe reply: %w", err)
		}

		var reply replyPacket
		if err := json.Unmarshal(buf[:n], &reply); err != nil || reply.Magic != replyMagic {
			continue // unrelated traffic on the port
		}
		if reply.NodeID == s.localID {
			continue
		}

		addr := reply.RPCAddr
		if addr == "" {
			addr = from.IP.String()
		}

		records = append(records, domain.DiscoveryRecord{
			NodeID:       reply.NodeID,
			Addr:         addr,
			Source:       domain.SourceBroadcast,
			Capability:   reply.Capability,
			DiscoveredAt: now,
		})
	}

	return records, nil
}

// BroadcastResponder answers local broadcast probes so peers on the
// same segment can find this node.
type BroadcastResponder struct {
	conn   *net.UDPConn
	reply  []byte
	logger *slog.Logger
	doneCh chan struct{}
}

// NewBroadcastResponder starts answering probes on the given port.
func NewBroadcastResponder(nodeID, rpcAddr, capability string, port int, logger *slog.Logger) (*BroadcastResponder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("listen broadcast port %d: %w", port, err)
	}

	reply, err := json.Marshal(replyPacket{
		Magic:      replyMagic,
		NodeID:     nodeID,
		RPCAddr:    rpcAddr,
		Capability: capability,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("encode probe reply: %w", err)
	}

	r := &BroadcastResponder{
		conn:   conn,
		reply:  reply,
		logger: logger,
		doneCh: make(chan struct{}),
	}
	go r.serve()

	logger.Info("broadcast responder started", "port", port)
	return r, nil
}

func (r *BroadcastResponder) serve() {
	defer close(r.doneCh)

	buf := make([]byte, 1024)
	for {
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed
		}

		var probe probePacket
		if err := json.Unmarshal(buf[:n], &probe); err != nil || probe.Magic != probeMagic {
			continue
		}

		if _, err := r.conn.WriteToUDP(r.reply, from); err != nil {
			r.logger.Debug("probe reply failed", "to", from.String(), "error", err)
		}
	}
}

// Close stops the responder.
func (r *BroadcastResponder) Close() error {
	err := r.conn.Close()
	<-r.doneCh
	return err
}
