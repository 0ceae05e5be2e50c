package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
)

// fakeSource is a scriptable Source for tests.
type fakeSource struct {
	name     string
	priority int
	records  []domain.DiscoveryRecord
	err      error
}

func (f *fakeSource) Name() string  { return f.name }
func (f *fakeSource) Priority() int { return f.priority }
func (f *fakeSource) Discover(ctx context.Context) ([]domain.DiscoveryRecord, error) {
	return f.records, f.err
}

func record(nodeID, addr string, source domain.DiscoverySource, at time.Time) domain.DiscoveryRecord {
	return domain.DiscoveryRecord{
		NodeID:       nodeID,
		Addr:         addr,
		Source:       source,
		DiscoveredAt: at,
	}
}

func TestService_DedupeKeepsStrongerSource(t *testing.T) {
	now := time.Now()

	bootstrap := &fakeSource{
		name:     "bootstrap",
		priority: domain.SourceBootstrap.Priority(),
		records: []domain.DiscoveryRecord{
			record("mmnode-a", "10.0.0.1:7450", domain.SourceBootstrap, now),
		},
	}
	dns := &fakeSource{
		name:     "dns",
		priority: domain.SourceDNS.Priority(),
		records: []domain.DiscoveryRecord{
			record("mmnode-a", "10.0.0.99:7450", domain.SourceDNS, now.Add(time.Second)),
		},
	}

	svc := NewService(Config{LocalID: "mmnode-local"}, dns, bootstrap)
	svc.DiscoverNow(context.Background())

	records := svc.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Source != domain.SourceBootstrap {
		t.Errorf("expected bootstrap-sourced record to win, got %s", records[0].Source)
	}
	if records[0].Addr != "10.0.0.1:7450" {
		t.Errorf("expected bootstrap address, got %s", records[0].Addr)
	}

	// The weaker source must not downgrade the record on later cycles
	svc.DiscoverNow(context.Background())
	if got := svc.Records()[0].Source; got != domain.SourceBootstrap {
		t.Errorf("record downgraded to %s", got)
	}
}

func TestService_NewerRecordWinsWithinSource(t *testing.T) {
	now := time.Now()

	src := &fakeSource{
		name:     "bootstrap",
		priority: domain.SourceBootstrap.Priority(),
		records: []domain.DiscoveryRecord{
			record("mmnode-a", "10.0.0.1:7450", domain.SourceBootstrap, now),
		},
	}

	svc := NewService(Config{LocalID: "mmnode-local"}, src)
	svc.DiscoverNow(context.Background())

	src.records = []domain.DiscoveryRecord{
		record("mmnode-a", "10.0.0.2:7450", domain.SourceBootstrap, now.Add(time.Minute)),
	}
	svc.DiscoverNow(context.Background())

	if got := svc.Records()[0].Addr; got != "10.0.0.2:7450" {
		t.Errorf("expected refreshed address, got %s", got)
	}
}

func TestService_ExcludesSelf(t *testing.T) {
	src := &fakeSource{
		name:     "bootstrap",
		priority: domain.SourceBootstrap.Priority(),
		records: []domain.DiscoveryRecord{
			record("mmnode-local", "127.0.0.1:7450", domain.SourceBootstrap, time.Now()),
			record("mmnode-b", "10.0.0.2:7450", domain.SourceBootstrap, time.Now()),
		},
	}

	svc := NewService(Config{LocalID: "mmnode-local"}, src)
	svc.DiscoverNow(context.Background())

	records := svc.Records()
	if len(records) != 1 || records[0].NodeID != "mmnode-b" {
		t.Fatalf("expected only mmnode-b, got %v", records)
	}
}

func TestService_FailingSourceDoesNotBlockOthers(t *testing.T) {
	failing := &fakeSource{
		name:     "dns",
		priority: domain.SourceDNS.Priority(),
		err:      context.DeadlineExceeded,
	}
	working := &fakeSource{
		name:     "bootstrap",
		priority: domain.SourceBootstrap.Priority(),
		records: []domain.DiscoveryRecord{
			record("mmnode-a", "10.0.0.1:7450", domain.SourceBootstrap, time.Now()),
		},
	}

	svc := NewService(Config{LocalID: "mmnode-local"}, failing, working)
	svc.DiscoverNow(context.Background())

	if len(svc.Records()) != 1 {
		t.Fatal("working source results lost behind failing source")
	}
}

func TestService_CapEvictsWeakestOldestFirst(t *testing.T) {
	now := time.Now()

	src := &fakeSource{
		name:     "mixed",
		priority: domain.SourceBootstrap.Priority(),
		records: []domain.DiscoveryRecord{
			record("mmnode-boot", "10.0.0.1:7450", domain.SourceBootstrap, now),
			record("mmnode-bcast-old", "10.0.0.2:7450", domain.SourceBroadcast, now.Add(-time.Hour)),
			record("mmnode-bcast-new", "10.0.0.3:7450", domain.SourceBroadcast, now),
			record("mmnode-dns", "10.0.0.4:7450", domain.SourceDNS, now.Add(-2*time.Hour)),
		},
	}

	svc := NewService(Config{LocalID: "mmnode-local", MaxNodes: 2}, src)
	svc.DiscoverNow(context.Background())

	records := svc.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records after eviction, got %d", len(records))
	}

	kept := map[string]bool{}
	for _, r := range records {
		kept[r.NodeID] = true
	}
	// Broadcast records are the weakest source and go first, oldest
	// before newest; the bootstrap and DNS records survive.
	if !kept["mmnode-boot"] || !kept["mmnode-dns"] {
		t.Errorf("wrong survivors: %v", kept)
	}
}

func TestService_FeedDeliversNewRecords(t *testing.T) {
	src := &fakeSource{
		name:     "bootstrap",
		priority: domain.SourceBootstrap.Priority(),
		records: []domain.DiscoveryRecord{
			record("mmnode-a", "10.0.0.1:7450", domain.SourceBootstrap, time.Now()),
		},
	}

	svc := NewService(Config{LocalID: "mmnode-local"}, src)
	svc.DiscoverNow(context.Background())

	select {
	case got := <-svc.Feed():
		if got.NodeID != "mmnode-a" {
			t.Errorf("unexpected feed record: %v", got)
		}
	default:
		t.Fatal("expected a feed record")
	}

	// A repeat cycle with identical records emits nothing
	svc.DiscoverNow(context.Background())
	select {
	case got := <-svc.Feed():
		t.Fatalf("unexpected duplicate feed record: %v", got)
	default:
	}
}

func TestService_PeriodicCycle(t *testing.T) {
	src := &fakeSource{
		name:     "bootstrap",
		priority: domain.SourceBootstrap.Priority(),
		records: []domain.DiscoveryRecord{
			record("mmnode-a", "10.0.0.1:7450", domain.SourceBootstrap, time.Now()),
		},
	}

	svc := NewService(Config{
		LocalID:       "mmnode-local",
		CycleInterval: 10 * time.Millisecond,
	}, src)
	svc.Start()
	defer svc.Stop()

	deadline := time.After(time.Second)
	for {
		if len(svc.Records()) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("periodic cycle never populated the table")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// closableSource is a fakeSource that records Close calls.
type closableSource struct {
	fakeSource
	closeCount int
}

func (c *closableSource) Close() error {
	c.closeCount++
	return nil
}

func TestService_StopClosesSources(t *testing.T) {
	src := &closableSource{fakeSource: fakeSource{
		name:     "gossip",
		priority: domain.SourceGossip.Priority(),
	}}
	plain := &fakeSource{
		name:     "bootstrap",
		priority: domain.SourceBootstrap.Priority(),
	}

	svc := NewService(Config{LocalID: "mmnode-local"}, src, plain)
	svc.Start()
	svc.Stop()

	if src.closeCount != 1 {
		t.Fatalf("expected source closed once, got %d", src.closeCount)
	}

	// Stop is idempotent and must not close twice
	svc.Stop()
	if src.closeCount != 1 {
		t.Errorf("repeated Stop closed the source again (%d)", src.closeCount)
	}
}
