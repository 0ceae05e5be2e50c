package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
	"github.com/yndnr/memmesh-go/internal/storage"
	"github.com/yndnr/memmesh-go/internal/telemetry/metric"
	"github.com/yndnr/memmesh-go/pkg/vclock"
)

// recordPrefix namespaces replicated records in the KV engine.
const recordPrefix = "record:"

// Config configures the replicated store.
type Config struct {
	// LocalID is this node's ID; local writes tick its clock component.
	LocalID string

	// Strategy resolves concurrent writes: lww, highest_node or
	// merge_union.
	Strategy string

	// TombstoneRetention is how long tombstones persist before GC.
	TombstoneRetention time.Duration

	// Engine persists records across restarts.
	Engine storage.KVEngine

	// Logger for logging.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metric.Set
}

// Store is the multi-master replicated key-value store.
type Store struct {
	cfg      Config
	strategy Strategy
	logger   *slog.Logger

	mu         sync.Mutex
	records    map[string]*Record
	quarantine map[uint64]Record
}

// NewStore creates a store and reloads persisted records.
func NewStore(cfg Config) (*Store, error) {
	if cfg.LocalID == "" {
		return nil, fmt.Errorf("replication: %w", domain.ErrNodeIDRequired)
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("replication: storage engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TombstoneRetention <= 0 {
		cfg.TombstoneRetention = time.Hour
	}

	strategy, err := StrategyFor(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:        cfg,
		strategy:   strategy,
		logger:     cfg.Logger,
		records:    make(map[string]*Record),
		quarantine: make(map[uint64]Record),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("replication: reload records: %w", err)
	}

	return s, nil
}

func (s *Store) load() error {
	count := 0
	err := s.cfg.Engine.Scan(context.Background(), []byte(recordPrefix), func(key, value []byte) bool {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			s.logger.Error("skipping undecodable persisted record",
				"key", string(key), "error", err)
			return true
		}
		s.records[rec.Key] = &rec
		count++
		return true
	})
	if err != nil {
		return err
	}

	if count > 0 {
		s.logger.Info("replicated records reloaded", "count", count)
	}
	return nil
}

// Put stores a local write, ticking this node's clock component.
// The returned record is what peers should receive.
func (s *Store) Put(key string, value []byte) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clock := vclock.New()
	if existing, ok := s.records[key]; ok {
		clock = existing.Clock.Copy()
	}
	clock.Tick(s.cfg.LocalID)

	rec := Record{
		Key:        key,
		Value:      append([]byte(nil), value...),
		Clock:      clock,
		LastWriter: s.cfg.LocalID,
		WrittenAt:  time.Now(),
	}
	rec.Seal()

	if err := s.persistLocked(&rec); err != nil {
		return Record{}, err
	}
	s.records[key] = &rec
	return rec.Clone(), nil
}

// Get returns the value for key. Tombstoned and unknown keys return
// domain.ErrKeyNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || rec.Tombstone {
		return nil, fmt.Errorf("get %q: %w", key, domain.ErrKeyNotFound)
	}
	return append([]byte(nil), rec.Value...), nil
}

// GetRecord returns the full record, tombstones included.
func (s *Store) GetRecord(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// Delete writes a tombstone for key. The tombstone propagates like
// any other write until garbage collected.
func (s *Store) Delete(key string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[key]
	if !ok || existing.Tombstone {
		return Record{}, fmt.Errorf("delete %q: %w", key, domain.ErrKeyNotFound)
	}

	clock := existing.Clock.Copy()
	clock.Tick(s.cfg.LocalID)

	rec := Record{
		Key:        key,
		Clock:      clock,
		LastWriter: s.cfg.LocalID,
		WrittenAt:  time.Now(),
		Tombstone:  true,
	}
	rec.Seal()

	if err := s.persistLocked(&rec); err != nil {
		return Record{}, err
	}
	s.records[key] = &rec
	return rec.Clone(), nil
}

// Merge applies a remote record. Returns true when the local state
// changed. Corrupt records are quarantined and never applied.
func (s *Store) Merge(remote Record) (bool, error) {
	if !remote.Verify() {
		s.quarantineRecord(remote)
		return false, fmt.Errorf("merge %q: %w", remote.Key, domain.ErrCorruptRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[remote.Key]
	if !ok {
		rec := remote.Clone()
		if err := s.persistLocked(&rec); err != nil {
			return false, err
		}
		s.records[remote.Key] = &rec
		return true, nil
	}

	// Identical checksum means this exact version was already merged
	if existing.Checksum == remote.Checksum {
		return false, nil
	}

	var next Record
	switch remote.Clock.Compare(existing.Clock) {
	case vclock.After:
		next = remote.Clone()
	case vclock.Before, vclock.Equal:
		return false, nil
	case vclock.Concurrent:
		next = s.strategy.Resolve(existing.Clone(), remote)
		s.logger.Info("conflict resolved",
			"key", remote.Key,
			"strategy", s.strategy.Name(),
			"winner", next.LastWriter,
			"clock", next.Clock.String())
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.MergeConflicts.WithLabelValues(s.strategy.Name()).Inc()
		}
	}

	if next.Checksum == existing.Checksum {
		return false, nil
	}

	if err := s.persistLocked(&next); err != nil {
		return false, err
	}
	s.records[next.Key] = &next
	return true, nil
}

func (s *Store) quarantineRecord(remote Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.quarantine[remote.Checksum]; seen {
		return
	}
	s.quarantine[remote.Checksum] = remote

	s.logger.Error("corrupt record quarantined",
		"key", remote.Key,
		"writer", remote.LastWriter,
		"checksum", remote.Checksum)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.Quarantined.Inc()
	}
}

// Quarantined returns the quarantined records for manual review.
func (s *Store) Quarantined() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.quarantine))
	for _, rec := range s.quarantine {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Digest returns the per-key checksum map exchanged by anti-entropy.
func (s *Store) Digest() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]uint64, len(s.records))
	for key, rec := range s.records {
		out[key] = rec.Checksum
	}
	return out
}

// DiffKeys returns the keys where local state diverges from a remote
// digest, in both directions.
func (s *Store) DiffKeys(remote map[string]uint64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	diff := make(map[string]struct{})
	for key, rec := range s.records {
		if sum, ok := remote[key]; !ok || sum != rec.Checksum {
			diff[key] = struct{}{}
		}
	}
	for key := range remote {
		if _, ok := s.records[key]; !ok {
			diff[key] = struct{}{}
		}
	}

	out := make([]string, 0, len(diff))
	for key := range diff {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Export returns copies of the named records, skipping unknown keys.
func (s *Store) Export(keys []string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		if rec, ok := s.records[key]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// All returns every record, tombstones included, sorted by key.
func (s *Store) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// GCTombstones removes tombstones past the retention window and
// returns how many were collected.
func (s *Store) GCTombstones(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	collected := 0
	for key, rec := range s.records {
		if !rec.Tombstone {
			continue
		}
		if now.Sub(rec.WrittenAt) <= s.cfg.TombstoneRetention {
			continue
		}

		if err := s.cfg.Engine.Delete(context.Background(), []byte(recordPrefix+key)); err != nil {
			s.logger.Error("tombstone gc failed", "key", key, "error", err)
			continue
		}
		delete(s.records, key)
		collected++
	}

	if collected > 0 {
		s.logger.Info("tombstones collected", "count", collected)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.TombstonesGCed.Add(float64(collected))
		}
	}
	return collected
}

func (s *Store) persistLocked(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %q: %w", rec.Key, err)
	}
	if err := s.cfg.Engine.Set(context.Background(), []byte(recordPrefix+rec.Key), data); err != nil {
		return fmt.Errorf("persist record %q: %w", rec.Key, err)
	}
	return nil
}
