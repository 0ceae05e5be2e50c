package coordinator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
	"github.com/yndnr/memmesh-go/internal/telemetry/metric"
)

// Config configures the coordinator.
type Config struct {
	// DegradedFailures moves a node healthy -> degraded.
	DegradedFailures int

	// UnhealthyFailures moves a node degraded -> unhealthy.
	UnhealthyFailures int

	// DeadTimeout marks an unhealthy node dead after this long
	// without a successful heartbeat.
	DeadTimeout time.Duration

	// RecoverySuccesses is the consecutive successful heartbeats
	// needed to step health back one state.
	RecoverySuccesses int

	// TombstoneRetention keeps dead nodes for audit before purging.
	TombstoneRetention time.Duration

	// SweepInterval is the background dead-detection period.
	SweepInterval time.Duration

	// Logger for logging.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metric.Set
}

// member is the coordinator's internal per-node state.
type member struct {
	desc domain.NodeDescriptor

	consecFailures  int
	consecSuccesses int

	// rttEMA is the exponential moving average round-trip time in
	// seconds; rttSamples counts observations.
	rttEMA     float64
	rttSamples int

	deadAt time.Time
}

// Coordinator maintains cluster membership and node health.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	members map[string]*member
	rrNext  uint64

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DegradedFailures <= 0 {
		cfg.DegradedFailures = 3
	}
	if cfg.UnhealthyFailures <= cfg.DegradedFailures {
		cfg.UnhealthyFailures = cfg.DegradedFailures * 2
	}
	if cfg.RecoverySuccesses <= 0 {
		cfg.RecoverySuccesses = 3
	}
	if cfg.DeadTimeout <= 0 {
		cfg.DeadTimeout = 2 * time.Minute
	}
	if cfg.TombstoneRetention <= 0 {
		cfg.TombstoneRetention = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Second
	}

	return &Coordinator{
		cfg:     cfg,
		logger:  cfg.Logger,
		members: make(map[string]*member),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the background sweep.
func (c *Coordinator) Start() {
	go c.sweepLoop()
}

// Stop halts the background sweep.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		<-c.doneCh
	})
}

func (c *Coordinator) sweepLoop() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep(time.Now())
		case <-c.stopCh:
			return
		}
	}
}

// Register adds or updates a node descriptor. Idempotent on node ID.
// A dead node that re-registers starts over with fresh health.
func (c *Coordinator) Register(desc domain.NodeDescriptor) error {
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("register %s: %w", desc.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.members[desc.ID]
	if ok && existing.desc.Health != domain.Dead {
		// Update address and capability, leave health tracking alone
		existing.desc.Addr = desc.Addr
		existing.desc.Capability = desc.Capability
		c.logger.Debug("node registration refreshed", "node_id", desc.ID, "addr", desc.Addr)
		return nil
	}

	desc.Health = domain.Healthy
	if desc.LastHeartbeat.IsZero() {
		desc.LastHeartbeat = time.Now()
	}
	c.members[desc.ID] = &member{desc: desc}

	if ok {
		c.logger.Info("dead node re-registered", "node_id", desc.ID, "addr", desc.Addr)
	} else {
		c.logger.Info("node registered", "node_id", desc.ID, "addr", desc.Addr)
	}
	c.updateGaugesLocked()
	return nil
}

// Deregister removes a node outright (graceful shutdown path).
func (c *Coordinator) Deregister(nodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.members[nodeID]; !ok {
		return fmt.Errorf("deregister: %w", domain.ErrNodeNotFound)
	}

	delete(c.members, nodeID)
	c.logger.Info("node deregistered", "node_id", nodeID)
	c.updateGaugesLocked()
	return nil
}

// Heartbeat records a successful heartbeat with the node's reported
// load. Dead nodes must re-register first.
func (c *Coordinator) Heartbeat(nodeID string, loadScore float64) error {
	if loadScore < 0 || loadScore > 1 {
		return fmt.Errorf("heartbeat %s: %w: load score %.3f outside [0,1]",
			nodeID, domain.ErrInvalidLoadScore, loadScore)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.members[nodeID]
	if !ok || m.desc.Health == domain.Dead {
		return fmt.Errorf("heartbeat %s: %w", nodeID, domain.ErrNodeNotFound)
	}

	m.desc.LoadScore = loadScore
	m.desc.LastHeartbeat = time.Now()
	m.consecFailures = 0
	m.consecSuccesses++

	if m.desc.Health != domain.Healthy && m.consecSuccesses >= c.cfg.RecoverySuccesses {
		// Step back one state; full recovery takes another streak
		from := m.desc.Health
		m.desc.Health--
		m.consecSuccesses = 0
		c.transitionLocked(nodeID, from, m.desc.Health)
	}

	return nil
}

// ReportFailure records a failed or missed heartbeat.
func (c *Coordinator) ReportFailure(nodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.members[nodeID]
	if !ok {
		return fmt.Errorf("report failure %s: %w", nodeID, domain.ErrNodeNotFound)
	}
	if m.desc.Health == domain.Dead {
		return nil
	}

	m.consecSuccesses = 0
	m.consecFailures++

	from := m.desc.Health
	switch {
	case m.desc.Health == domain.Healthy && m.consecFailures >= c.cfg.DegradedFailures:
		m.desc.Health = domain.Degraded
	case m.desc.Health == domain.Degraded && m.consecFailures >= c.cfg.UnhealthyFailures:
		m.desc.Health = domain.Unhealthy
	}
	if m.desc.Health != from {
		c.transitionLocked(nodeID, from, m.desc.Health)
	}

	return nil
}

// Sweep marks silent unhealthy nodes dead and purges expired
// tombstones. Called periodically; exposed for deterministic tests.
func (c *Coordinator) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for nodeID, m := range c.members {
		switch m.desc.Health {
		case domain.Unhealthy:
			if now.Sub(m.desc.LastHeartbeat) > c.cfg.DeadTimeout {
				m.desc.Health = domain.Dead
				m.deadAt = now
				c.transitionLocked(nodeID, domain.Unhealthy, domain.Dead)
			}
		case domain.Dead:
			if now.Sub(m.deadAt) > c.cfg.TombstoneRetention {
				delete(c.members, nodeID)
				c.logger.Info("tombstone purged", "node_id", nodeID)
			}
		}
	}
	c.updateGaugesLocked()
}

// Get returns a copy of one member's descriptor.
func (c *Coordinator) Get(nodeID string) (*domain.NodeDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.members[nodeID]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", nodeID, domain.ErrNodeNotFound)
	}
	return m.desc.Clone(), nil
}

// Members returns copies of all descriptors, tombstones included.
func (c *Coordinator) Members() []domain.NodeDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.NodeDescriptor, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, *m.desc.Clone())
	}
	return out
}

// Reachable reports selectable vs total (non-tombstone) members, the
// "M of N nodes reachable" figure surfaced in status output.
func (c *Coordinator) Reachable() (selectable, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.members {
		if m.desc.Health == domain.Dead {
			continue
		}
		total++
		if m.desc.Health.Selectable() {
			selectable++
		}
	}
	return selectable, total
}

func (c *Coordinator) transitionLocked(nodeID string, from, to domain.HealthState) {
	c.logger.Info("health transition",
		"node_id", nodeID,
		"from", from.String(),
		"to", to.String())

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.HealthChanges.WithLabelValues(to.String()).Inc()
	}
	c.updateGaugesLocked()
}

func (c *Coordinator) updateGaugesLocked() {
	if c.cfg.Metrics == nil {
		return
	}

	healthy := 0
	for _, m := range c.members {
		if m.desc.Health.Selectable() {
			healthy++
		}
	}
	c.cfg.Metrics.MembersKnown.Set(float64(len(c.members)))
	c.cfg.Metrics.MembersHealthy.Set(float64(healthy))
}
