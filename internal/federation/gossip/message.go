package gossip

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/memmesh-go/internal/federation/replication"
)

// Kind identifies a gossip message type.
type Kind string

const (
	// KindPush carries replication records to be merged.
	KindPush Kind = "PUSH"
	// KindPull requests records for the named keys (all keys when
	// empty); the reply is a PUSH.
	KindPull Kind = "PULL"
	// KindPushPull carries records and requests others in one trip;
	// the reply is a PUSH with the requested keys.
	KindPushPull Kind = "PUSH_PULL"
	// KindSync opens an anti-entropy round with a per-key checksum
	// digest; the reply is a SYNC carrying divergent records and the
	// keys the responder wants back.
	KindSync Kind = "SYNC"
	// KindPing probes peer liveness; the reply is a PONG.
	KindPing Kind = "PING"
	// KindPong answers a PING.
	KindPong Kind = "PONG"
)

// Message is a gossip envelope. The ID is a content digest, so a
// relayed copy deduplicates against the original regardless of TTL.
type Message struct {
	ID      string               `json:"id"`
	Kind    Kind                 `json:"kind"`
	Origin  string               `json:"origin"`
	TTL     int                  `json:"ttl"`
	Keys    []string             `json:"keys,omitempty"`
	Records []replication.Record `json:"records,omitempty"`
	Digest  map[string]uint64    `json:"digest,omitempty"`
	Want    []string             `json:"want,omitempty"`
	SentAt  time.Time            `json:"sent_at"`
}

// Peer is a gossip destination.
type Peer struct {
	ID   string
	Addr string
}

// Transport delivers a message to a peer and returns the peer's
// reply when the exchange has one (PONG for PING, PUSH for PULL and
// PUSH_PULL, SYNC for SYNC), nil otherwise.
type Transport interface {
	Send(ctx context.Context, peer Peer, msg Message) (*Message, error)
}

// messageID digests the parts of a message that identify its content.
// TTL and send time are excluded.
func messageID(kind Kind, origin string, keys []string, records []replication.Record) string {
	h := murmur3.New128()
	io.WriteString(h, string(kind))
	h.Write([]byte{0})
	io.WriteString(h, origin)
	h.Write([]byte{0})
	for _, key := range keys {
		io.WriteString(h, key)
		h.Write([]byte{0})
	}
	var sum [8]byte
	for _, rec := range records {
		io.WriteString(h, rec.Key)
		binary.BigEndian.PutUint64(sum[:], rec.Checksum)
		h.Write(sum[:])
	}
	h1, h2 := h.Sum128()
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// NewPush builds a sealed PUSH message.
func NewPush(origin string, ttl int, records []replication.Record) Message {
	return Message{
		ID:      messageID(KindPush, origin, nil, records),
		Kind:    KindPush,
		Origin:  origin,
		TTL:     ttl,
		Records: records,
		SentAt:  time.Now().UTC(),
	}
}
