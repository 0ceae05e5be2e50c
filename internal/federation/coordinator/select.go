package coordinator

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
)

// Selection algorithms.
const (
	AlgLeastLoaded = "least_loaded"
	AlgRoundRobin  = "round_robin"
	AlgLatency     = "latency"
	AlgRandom      = "random"
)

// rttWindow is the EMA window for the latency selector.
const rttWindow = 10

// rttAlpha is the EMA smoothing factor, 2/(window+1).
const rttAlpha = 2.0 / (rttWindow + 1)

// ObserveRTT feeds one round-trip sample into the latency selector.
func (c *Coordinator) ObserveRTT(nodeID string, rtt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.members[nodeID]
	if !ok {
		return
	}

	sample := rtt.Seconds()
	if m.rttSamples == 0 {
		m.rttEMA = sample
	} else {
		m.rttEMA = rttAlpha*sample + (1-rttAlpha)*m.rttEMA
	}
	m.rttSamples++
}

// Select returns one selectable node using the given algorithm.
//
// Dead and unhealthy nodes are never candidates. Returns
// domain.ErrNoHealthyNodes when the candidate set is empty and
// domain.ErrUnknownAlgorithm for an unrecognized algorithm name.
func (c *Coordinator) Select(algorithm string) (*domain.NodeDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidates := c.selectableLocked()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("select %s: %w", algorithm, domain.ErrNoHealthyNodes)
	}

	var chosen *member
	switch algorithm {
	case AlgLeastLoaded:
		chosen = pickLeastLoaded(candidates)
	case AlgRoundRobin:
		chosen = candidates[c.rrNext%uint64(len(candidates))]
		c.rrNext++
	case AlgLatency:
		chosen = pickLowestRTT(candidates)
	case AlgRandom:
		chosen = candidates[rand.Intn(len(candidates))]
	default:
		return nil, fmt.Errorf("select: %w: %q", domain.ErrUnknownAlgorithm, algorithm)
	}

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.Selections.WithLabelValues(algorithm).Inc()
	}
	return chosen.desc.Clone(), nil
}

// selectableLocked returns the candidate list ordered by node ID so
// the round-robin pointer walks a stable sequence.
func (c *Coordinator) selectableLocked() []*member {
	out := make([]*member, 0, len(c.members))
	for _, m := range c.members {
		if m.desc.Health.Selectable() {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].desc.ID < out[j].desc.ID })
	return out
}

// pickLeastLoaded takes the minimum load score, ties broken by
// lexicographically smallest node ID.
func pickLeastLoaded(candidates []*member) *member {
	best := candidates[0]
	for _, m := range candidates[1:] {
		if m.desc.LoadScore < best.desc.LoadScore {
			best = m
		}
		// candidates are ID-sorted, so on a tie the earlier entry
		// already holds the smaller ID
	}
	return best
}

// pickLowestRTT takes the minimum EMA round-trip time. Nodes without
// samples rank last so a fresh node is not preferred over a measured
// fast one.
func pickLowestRTT(candidates []*member) *member {
	best := candidates[0]
	for _, m := range candidates[1:] {
		if rttRank(m) < rttRank(best) {
			best = m
		}
	}
	return best
}

func rttRank(m *member) float64 {
	if m.rttSamples == 0 {
		return float64(time.Hour / time.Second)
	}
	return m.rttEMA
}
