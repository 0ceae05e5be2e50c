package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
)

func testConfig() Config {
	return Config{
		DegradedFailures:   3,
		UnhealthyFailures:  6,
		DeadTimeout:        time.Minute,
		RecoverySuccesses:  3,
		TombstoneRetention: time.Hour,
	}
}

func desc(id string) domain.NodeDescriptor {
	return domain.NodeDescriptor{ID: id, Addr: id + ".mesh:7450"}
}

func mustRegister(t *testing.T, c *Coordinator, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := c.Register(desc(id)); err != nil {
			t.Fatal(err)
		}
	}
}

func fail(t *testing.T, c *Coordinator, id string, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		if err := c.ReportFailure(id); err != nil {
			t.Fatal(err)
		}
	}
}

func beat(t *testing.T, c *Coordinator, id string, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		if err := c.Heartbeat(id, 0.5); err != nil {
			t.Fatal(err)
		}
	}
}

func health(t *testing.T, c *Coordinator, id string) domain.HealthState {
	t.Helper()
	d, err := c.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	return d.Health
}

func TestRegister(t *testing.T) {
	c := New(testConfig())

	t.Run("valid descriptor", func(t *testing.T) {
		if err := c.Register(desc("mmnode-a")); err != nil {
			t.Fatal(err)
		}
		if got := health(t, c, "mmnode-a"); got != domain.Healthy {
			t.Errorf("new node should be healthy, got %s", got)
		}
	})

	t.Run("idempotent update keeps health tracking", func(t *testing.T) {
		fail(t, c, "mmnode-a", 3)
		if got := health(t, c, "mmnode-a"); got != domain.Degraded {
			t.Fatalf("setup: expected degraded, got %s", got)
		}

		updated := desc("mmnode-a")
		updated.Addr = "moved.mesh:7450"
		if err := c.Register(updated); err != nil {
			t.Fatal(err)
		}

		d, _ := c.Get("mmnode-a")
		if d.Addr != "moved.mesh:7450" {
			t.Errorf("address not updated: %s", d.Addr)
		}
		if d.Health != domain.Degraded {
			t.Errorf("re-registration must not launder health, got %s", d.Health)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		err := c.Register(domain.NodeDescriptor{Addr: "x:1"})
		if !errors.Is(err, domain.ErrNodeIDRequired) {
			t.Errorf("expected ErrNodeIDRequired, got %v", err)
		}
	})

	t.Run("missing addr", func(t *testing.T) {
		err := c.Register(domain.NodeDescriptor{ID: "mmnode-x"})
		if !errors.Is(err, domain.ErrNodeAddrRequired) {
			t.Errorf("expected ErrNodeAddrRequired, got %v", err)
		}
	})
}

func TestDeregister(t *testing.T) {
	c := New(testConfig())
	mustRegister(t, c, "mmnode-a")

	if err := c.Deregister("mmnode-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("mmnode-a"); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}

	if err := c.Deregister("mmnode-a"); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Errorf("double deregister: expected ErrNodeNotFound, got %v", err)
	}
}

func TestHeartbeat(t *testing.T) {
	c := New(testConfig())
	mustRegister(t, c, "mmnode-a")

	t.Run("updates load score", func(t *testing.T) {
		if err := c.Heartbeat("mmnode-a", 0.73); err != nil {
			t.Fatal(err)
		}
		d, _ := c.Get("mmnode-a")
		if d.LoadScore != 0.73 {
			t.Errorf("load score not updated: %f", d.LoadScore)
		}
	})

	t.Run("rejects out-of-range load", func(t *testing.T) {
		if err := c.Heartbeat("mmnode-a", 1.5); !errors.Is(err, domain.ErrInvalidLoadScore) {
			t.Errorf("expected ErrInvalidLoadScore, got %v", err)
		}
	})

	t.Run("unknown node", func(t *testing.T) {
		if err := c.Heartbeat("mmnode-ghost", 0.1); !errors.Is(err, domain.ErrNodeNotFound) {
			t.Errorf("expected ErrNodeNotFound, got %v", err)
		}
	})
}

func TestHealthTransitions(t *testing.T) {
	t.Run("failures walk forward through states", func(t *testing.T) {
		c := New(testConfig())
		mustRegister(t, c, "mmnode-a")

		fail(t, c, "mmnode-a", 2)
		if got := health(t, c, "mmnode-a"); got != domain.Healthy {
			t.Errorf("2 failures should stay healthy, got %s", got)
		}

		fail(t, c, "mmnode-a", 1)
		if got := health(t, c, "mmnode-a"); got != domain.Degraded {
			t.Errorf("3rd failure should degrade, got %s", got)
		}

		fail(t, c, "mmnode-a", 3)
		if got := health(t, c, "mmnode-a"); got != domain.Unhealthy {
			t.Errorf("6th failure should be unhealthy, got %s", got)
		}
	})

	t.Run("single success does not clear degradation", func(t *testing.T) {
		c := New(testConfig())
		mustRegister(t, c, "mmnode-a")
		fail(t, c, "mmnode-a", 3)

		beat(t, c, "mmnode-a", 1)
		if got := health(t, c, "mmnode-a"); got != domain.Degraded {
			t.Errorf("one success should not recover, got %s", got)
		}
	})

	t.Run("recovery steps back one state per streak", func(t *testing.T) {
		c := New(testConfig())
		mustRegister(t, c, "mmnode-a")
		fail(t, c, "mmnode-a", 6)
		if got := health(t, c, "mmnode-a"); got != domain.Unhealthy {
			t.Fatalf("setup: expected unhealthy, got %s", got)
		}

		beat(t, c, "mmnode-a", 3)
		if got := health(t, c, "mmnode-a"); got != domain.Degraded {
			t.Errorf("first streak should reach degraded, got %s", got)
		}

		beat(t, c, "mmnode-a", 3)
		if got := health(t, c, "mmnode-a"); got != domain.Healthy {
			t.Errorf("second streak should reach healthy, got %s", got)
		}
	})

	t.Run("failure resets the recovery streak", func(t *testing.T) {
		c := New(testConfig())
		mustRegister(t, c, "mmnode-a")
		fail(t, c, "mmnode-a", 3)

		beat(t, c, "mmnode-a", 2)
		fail(t, c, "mmnode-a", 1)
		beat(t, c, "mmnode-a", 2)
		if got := health(t, c, "mmnode-a"); got != domain.Degraded {
			t.Errorf("interrupted streak must not recover, got %s", got)
		}
	})
}

func TestSweep(t *testing.T) {
	t.Run("unhealthy node goes dead after timeout", func(t *testing.T) {
		c := New(testConfig())
		mustRegister(t, c, "mmnode-a")
		fail(t, c, "mmnode-a", 6)

		c.Sweep(time.Now().Add(30 * time.Second))
		if got := health(t, c, "mmnode-a"); got != domain.Unhealthy {
			t.Errorf("dead timeout not reached yet, got %s", got)
		}

		c.Sweep(time.Now().Add(2 * time.Minute))
		if got := health(t, c, "mmnode-a"); got != domain.Dead {
			t.Errorf("expected dead, got %s", got)
		}
	})

	t.Run("tombstone retained then purged", func(t *testing.T) {
		c := New(testConfig())
		mustRegister(t, c, "mmnode-a")
		fail(t, c, "mmnode-a", 6)

		deathTime := time.Now().Add(2 * time.Minute)
		c.Sweep(deathTime)

		// Tombstone still visible for audit
		if _, err := c.Get("mmnode-a"); err != nil {
			t.Fatalf("tombstone should remain visible: %v", err)
		}

		c.Sweep(deathTime.Add(2 * time.Hour))
		if _, err := c.Get("mmnode-a"); !errors.Is(err, domain.ErrNodeNotFound) {
			t.Errorf("tombstone should be purged, got %v", err)
		}
	})

	t.Run("dead node rejects heartbeats until re-registered", func(t *testing.T) {
		c := New(testConfig())
		mustRegister(t, c, "mmnode-a")
		fail(t, c, "mmnode-a", 6)
		c.Sweep(time.Now().Add(2 * time.Minute))

		if err := c.Heartbeat("mmnode-a", 0.1); !errors.Is(err, domain.ErrNodeNotFound) {
			t.Errorf("dead node heartbeat: expected ErrNodeNotFound, got %v", err)
		}

		if err := c.Register(desc("mmnode-a")); err != nil {
			t.Fatal(err)
		}
		if got := health(t, c, "mmnode-a"); got != domain.Healthy {
			t.Errorf("re-registered node should start healthy, got %s", got)
		}
	})
}

func TestReachable(t *testing.T) {
	c := New(testConfig())
	mustRegister(t, c, "mmnode-a", "mmnode-b", "mmnode-c")

	fail(t, c, "mmnode-b", 6)
	fail(t, c, "mmnode-c", 3)

	// b unhealthy (counted, not selectable), c degraded (selectable)
	selectable, total := c.Reachable()
	if total != 3 || selectable != 2 {
		t.Errorf("Reachable() = (%d, %d), want (2, 3)", selectable, total)
	}

	// b dead after the sweep: out of both counts
	c.Sweep(time.Now().Add(2 * time.Minute))
	selectable, total = c.Reachable()
	if total != 2 || selectable != 2 {
		t.Errorf("after sweep Reachable() = (%d, %d), want (2, 2)", selectable, total)
	}
}
