package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
)

func TestSelect_LeastLoaded(t *testing.T) {
	c := New(testConfig())
	mustRegister(t, c, "mmnode-a", "mmnode-b", "mmnode-c")

	if err := c.Heartbeat("mmnode-a", 0.9); err != nil {
		t.Fatal(err)
	}
	if err := c.Heartbeat("mmnode-b", 0.2); err != nil {
		t.Fatal(err)
	}
	if err := c.Heartbeat("mmnode-c", 0.5); err != nil {
		t.Fatal(err)
	}

	got, err := c.Select(AlgLeastLoaded)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "mmnode-b" {
		t.Errorf("expected mmnode-b, got %s", got.ID)
	}
}

func TestSelect_LeastLoadedTieBreaksByID(t *testing.T) {
	c := New(testConfig())
	mustRegister(t, c, "mmnode-z", "mmnode-a", "mmnode-m")

	for _, id := range []string{"mmnode-z", "mmnode-a", "mmnode-m"} {
		if err := c.Heartbeat(id, 0.4); err != nil {
			t.Fatal(err)
		}
	}

	got, err := c.Select(AlgLeastLoaded)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "mmnode-a" {
		t.Errorf("tie should break to smallest ID, got %s", got.ID)
	}
}

func TestSelect_RoundRobin(t *testing.T) {
	c := New(testConfig())
	mustRegister(t, c, "mmnode-a", "mmnode-b", "mmnode-c")

	var order []string
	for i := 0; i < 6; i++ {
		got, err := c.Select(AlgRoundRobin)
		if err != nil {
			t.Fatal(err)
		}
		order = append(order, got.ID)
	}

	want := []string{"mmnode-a", "mmnode-b", "mmnode-c", "mmnode-a", "mmnode-b", "mmnode-c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("rotation broke at %d: got %v", i, order)
		}
	}
}

func TestSelect_RoundRobinSkipsUnhealthyWithoutReset(t *testing.T) {
	c := New(testConfig())
	mustRegister(t, c, "mmnode-a", "mmnode-b", "mmnode-c")

	// Advance the pointer, then knock out mmnode-b
	if _, err := c.Select(AlgRoundRobin); err != nil {
		t.Fatal(err)
	}
	fail(t, c, "mmnode-b", 6)

	// The pointer keeps advancing over the shrunken candidate list;
	// unhealthy mmnode-b never appears
	for i := 0; i < 4; i++ {
		got, err := c.Select(AlgRoundRobin)
		if err != nil {
			t.Fatal(err)
		}
		if got.ID == "mmnode-b" {
			t.Fatal("unhealthy node selected by round robin")
		}
	}
}

func TestSelect_Latency(t *testing.T) {
	c := New(testConfig())
	mustRegister(t, c, "mmnode-a", "mmnode-b", "mmnode-c")

	for i := 0; i < 10; i++ {
		c.ObserveRTT("mmnode-a", 80*time.Millisecond)
		c.ObserveRTT("mmnode-b", 5*time.Millisecond)
		c.ObserveRTT("mmnode-c", 40*time.Millisecond)
	}

	got, err := c.Select(AlgLatency)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "mmnode-b" {
		t.Errorf("expected fastest node mmnode-b, got %s", got.ID)
	}
}

func TestSelect_LatencyEMAForgetsSlowStart(t *testing.T) {
	c := New(testConfig())
	mustRegister(t, c, "mmnode-a", "mmnode-b")

	// mmnode-a was slow once long ago, then consistently fast;
	// mmnode-b is steadily mediocre. The moving average must let
	// mmnode-a win.
	c.ObserveRTT("mmnode-a", 500*time.Millisecond)
	for i := 0; i < 30; i++ {
		c.ObserveRTT("mmnode-a", 2*time.Millisecond)
		c.ObserveRTT("mmnode-b", 50*time.Millisecond)
	}

	got, err := c.Select(AlgLatency)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "mmnode-a" {
		t.Errorf("EMA should favor recently fast node, got %s", got.ID)
	}
}

func TestSelect_LatencyPrefersMeasuredNodes(t *testing.T) {
	c := New(testConfig())
	mustRegister(t, c, "mmnode-a", "mmnode-b")

	c.ObserveRTT("mmnode-b", 200*time.Millisecond)

	got, err := c.Select(AlgLatency)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "mmnode-b" {
		t.Errorf("measured node should beat unmeasured, got %s", got.ID)
	}
}

func TestSelect_Random(t *testing.T) {
	c := New(testConfig())
	mustRegister(t, c, "mmnode-a", "mmnode-b", "mmnode-c")
	fail(t, c, "mmnode-c", 6)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		got, err := c.Select(AlgRandom)
		if err != nil {
			t.Fatal(err)
		}
		if got.ID == "mmnode-c" {
			t.Fatal("unhealthy node selected by random")
		}
		seen[got.ID] = true
	}

	if len(seen) != 2 {
		t.Errorf("random selection should cover both healthy nodes, saw %v", seen)
	}
}

func TestSelect_DegradedStillSelectable(t *testing.T) {
	c := New(testConfig())
	mustRegister(t, c, "mmnode-a")
	fail(t, c, "mmnode-a", 3)

	got, err := c.Select(AlgLeastLoaded)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "mmnode-a" {
		t.Errorf("degraded node should still serve, got %s", got.ID)
	}
}

func TestSelect_Errors(t *testing.T) {
	t.Run("no candidates", func(t *testing.T) {
		c := New(testConfig())
		mustRegister(t, c, "mmnode-a")
		fail(t, c, "mmnode-a", 6)

		_, err := c.Select(AlgLeastLoaded)
		if !errors.Is(err, domain.ErrNoHealthyNodes) {
			t.Errorf("expected ErrNoHealthyNodes, got %v", err)
		}
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		c := New(testConfig())
		mustRegister(t, c, "mmnode-a")

		_, err := c.Select("fastest")
		if !errors.Is(err, domain.ErrUnknownAlgorithm) {
			t.Errorf("expected ErrUnknownAlgorithm, got %v", err)
		}
	})
}
