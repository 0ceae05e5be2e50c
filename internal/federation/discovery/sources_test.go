package discovery

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
)

func TestBootstrapSource(t *testing.T) {
	src := NewBootstrapSource([]string{
		"mmnode-a@10.0.0.1:7450",
		"10.0.0.2:7450",
		"  ", // blank entries are skipped
	})

	if src.Priority() != domain.SourceBootstrap.Priority() {
		t.Errorf("unexpected priority %d", src.Priority())
	}

	records, err := src.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if records[0].NodeID != "mmnode-a" || records[0].Addr != "10.0.0.1:7450" {
		t.Errorf("id@addr form misparsed: %+v", records[0])
	}
	if records[1].NodeID != "10.0.0.2:7450" || records[1].Addr != "10.0.0.2:7450" {
		t.Errorf("plain addr should double as provisional ID: %+v", records[1])
	}
}

func TestSplitPeer(t *testing.T) {
	tests := []struct {
		in       string
		wantID   string
		wantAddr string
	}{
		{"mmnode-x@host:1", "mmnode-x", "host:1"},
		{"host:1", "host:1", "host:1"},
		{"@host:1", "@host:1", "@host:1"}, // empty ID falls back to whole string
	}

	for _, tt := range tests {
		id, addr := splitPeer(tt.in)
		if id != tt.wantID || addr != tt.wantAddr {
			t.Errorf("splitPeer(%q) = (%q, %q), want (%q, %q)",
				tt.in, id, addr, tt.wantID, tt.wantAddr)
		}
	}
}

func TestBroadcastResponder_AnswersProbe(t *testing.T) {
	responder, err := NewBroadcastResponder("mmnode-b", "10.0.0.2:7450", "vector-index", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer responder.Close()

	responderAddr := responder.conn.LocalAddr().(*net.UDPAddr)

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: responderAddr.Port,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	probe, _ := json.Marshal(probePacket{Magic: probeMagic, NodeID: "mmnode-a"})
	if _, err := conn.Write(probe); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("no reply from responder: %v", err)
	}

	var reply replyPacket
	if err := json.Unmarshal(buf[:n], &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Magic != replyMagic || reply.NodeID != "mmnode-b" || reply.RPCAddr != "10.0.0.2:7450" {
		t.Errorf("unexpected reply: %+v", reply)
	}
}

func TestBroadcastResponder_IgnoresJunk(t *testing.T) {
	responder, err := NewBroadcastResponder("mmnode-b", "10.0.0.2:7450", "", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer responder.Close()

	responderAddr := responder.conn.LocalAddr().(*net.UDPAddr)

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: responderAddr.Port,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("not json at all")); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 64)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("responder answered junk traffic")
	}
}

func TestGossipSource_CloseStopsMembership(t *testing.T) {
	src, err := NewGossipSource(GossipSourceConfig{
		NodeID:   "mmnode-solo",
		BindAddr: "127.0.0.1",
		BindPort: 0, // let memberlist pick a free port
		RPCAddr:  "127.0.0.1:7450",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !src.shutdown {
		t.Error("memberlist still running after Close")
	}

	// Close after shutdown is a no-op
	if err := src.Close(); err != nil {
		t.Errorf("repeated close: %v", err)
	}
}
