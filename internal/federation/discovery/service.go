package discovery

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
	"github.com/yndnr/memmesh-go/internal/telemetry/metric"
)

// Config configures the discovery service.
type Config struct {
	// LocalID is this node's ID; records carrying it are dropped.
	LocalID string

	// MaxNodes caps the record table. Beyond it, weakest-source
	// oldest records are evicted first.
	MaxNodes int

	// CycleInterval is the periodic discovery interval.
	CycleInterval time.Duration

	// FeedBuffer sizes the Feed channel. Default 64.
	FeedBuffer int

	// Logger for logging.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metric.Set
}

// Service runs the configured sources and maintains the deduplicated
// record table.
type Service struct {
	cfg     Config
	sources []Source
	logger  *slog.Logger

	mu      sync.RWMutex
	records map[string]domain.DiscoveryRecord

	feed chan domain.DiscoveryRecord

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewService creates a discovery service over the given sources.
// Sources are consulted strongest-first.
func NewService(cfg Config, sources ...Source) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = 256
	}
	if cfg.FeedBuffer <= 0 {
		cfg.FeedBuffer = 64
	}

	ordered := make([]Source, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	return &Service{
		cfg:     cfg,
		sources: ordered,
		logger:  cfg.Logger,
		records: make(map[string]domain.DiscoveryRecord),
		feed:    make(chan domain.DiscoveryRecord, cfg.FeedBuffer),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the periodic discovery cycle.
func (s *Service) Start() {
	go s.run()
}

// Stop halts the cycle, closes the feed, and closes every source
// that holds network resources.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		close(s.feed)

		for _, src := range s.sources {
			c, ok := src.(io.Closer)
			if !ok {
				continue
			}
			if err := c.Close(); err != nil {
				s.logger.Warn("discovery source close failed",
					"source", src.Name(), "error", err)
			}
		}
	})
}

func (s *Service) run() {
	defer close(s.doneCh)

	interval := s.cfg.CycleInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	// First cycle immediately so the coordinator isn't left waiting
	// one full interval on a fresh node
	ctx, cancel := context.WithTimeout(context.Background(), interval)
	s.DiscoverNow(ctx)
	cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			s.DiscoverNow(ctx)
			cancel()

		case <-s.stopCh:
			return
		}
	}
}

// DiscoverNow runs one discovery cycle across all sources and returns
// the records that were added or upgraded this cycle.
func (s *Service) DiscoverNow(ctx context.Context) []domain.DiscoveryRecord {
	perSource := make(map[string]int, len(s.sources))

	var changed []domain.DiscoveryRecord
	for _, src := range s.sources {
		records, err := src.Discover(ctx)
		if err != nil {
			// A failing source must not block the others
			s.logger.Warn("discovery source failed",
				"source", src.Name(),
				"error", err)
			continue
		}
		perSource[src.Name()] = len(records)

		for _, record := range records {
			if s.admit(record) {
				changed = append(changed, record)
			}
		}
	}

	s.evictOverCap()

	if s.cfg.Metrics != nil {
		for name, count := range perSource {
			s.cfg.Metrics.DiscoveredNodes.WithLabelValues(name).Set(float64(count))
		}
	}

	for _, record := range changed {
		select {
		case s.feed <- record:
		default:
			// Feed consumer is behind; it will catch up from Records()
		}
	}

	return changed
}

// admit applies dedup rules and stores the record if it wins.
func (s *Service) admit(record domain.DiscoveryRecord) bool {
	if record.NodeID == "" || record.NodeID == s.cfg.LocalID {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[record.NodeID]
	if ok && !record.Supersedes(existing) {
		return false
	}

	s.records[record.NodeID] = record
	if !ok {
		s.logger.Debug("discovered node",
			"node_id", record.NodeID,
			"addr", record.Addr,
			"source", record.Source.String())
	}
	return true
}

// evictOverCap trims the table to MaxNodes, removing weakest-source
// oldest records first.
func (s *Service) evictOverCap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	excess := len(s.records) - s.cfg.MaxNodes
	if excess <= 0 {
		return
	}

	all := make([]domain.DiscoveryRecord, 0, len(s.records))
	for _, record := range s.records {
		all = append(all, record)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Source.Priority() != all[j].Source.Priority() {
			return all[i].Source.Priority() > all[j].Source.Priority()
		}
		return all[i].DiscoveredAt.Before(all[j].DiscoveredAt)
	})

	for i := 0; i < excess; i++ {
		delete(s.records, all[i].NodeID)
		s.logger.Debug("evicted discovery record",
			"node_id", all[i].NodeID,
			"source", all[i].Source.String())
	}
}

// Records returns a snapshot of the current table.
func (s *Service) Records() []domain.DiscoveryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DiscoveryRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Feed returns the channel of newly admitted or upgraded records.
// Closed by Stop.
func (s *Service) Feed() <-chan domain.DiscoveryRecord {
	return s.feed
}
