package pool

import (
	"errors"
	"testing"
	"time"
)

// backdate shifts a connection's last activity into the past.
func backdate(c *Conn, d time.Duration) {
	c.lastActivity.Store(time.Now().Add(-d).UnixNano())
}

func TestHealthSweepMarksStale(t *testing.T) {
	cfg := testConfig()
	cfg.StalenessThreshold = 50 * time.Millisecond
	p := newStartedPool(t, cfg)

	c, ft := register(t, p, "x", "owner")
	ft.pingDelay = 500 * time.Millisecond // keep the probe in flight

	backdate(c, time.Second)
	p.healthSweep()

	if got := c.Health(); got != Stale {
		t.Errorf("Health = %v, want %v", got, Stale)
	}
}

func TestHealthSweepLeavesActiveAlone(t *testing.T) {
	cfg := testConfig()
	cfg.StalenessThreshold = time.Hour
	p := newStartedPool(t, cfg)

	c, _ := register(t, p, "x", "owner")
	p.healthSweep()

	if got := c.Health(); got != Healthy {
		t.Errorf("Health = %v, want %v", got, Healthy)
	}
}

func TestProbeSuccessRestoresHealthy(t *testing.T) {
	cfg := testConfig()
	cfg.StalenessThreshold = 50 * time.Millisecond
	cfg.ProbeTimeout = time.Second
	p := newStartedPool(t, cfg)

	c, ft := register(t, p, "x", "owner")
	ft.pingDelay = 20 * time.Millisecond

	backdate(c, time.Second)
	before := c.LastActivity()
	p.healthSweep()

	// Wait for the probe to come back.
	time.Sleep(150 * time.Millisecond)

	if got := c.Health(); got != Healthy {
		t.Errorf("Health after probe response = %v, want %v", got, Healthy)
	}
	if !c.LastActivity().After(before) {
		t.Error("LastActivity not refreshed by probe response")
	}
}

func TestProbeTimeoutMarksUnresponsive(t *testing.T) {
	cfg := testConfig()
	cfg.StalenessThreshold = 50 * time.Millisecond
	cfg.ProbeTimeout = 30 * time.Millisecond
	p := newStartedPool(t, cfg)

	c, ft := register(t, p, "x", "owner")
	ft.pingDelay = 5 * time.Second // never answers in time

	backdate(c, time.Second)
	p.healthSweep()

	time.Sleep(150 * time.Millisecond)

	if got := c.Health(); got != Unresponsive {
		t.Errorf("Health after probe timeout = %v, want %v", got, Unresponsive)
	}
	if got := p.Snapshot().ProbeFailures; got != 1 {
		t.Errorf("ProbeFailures = %d, want 1", got)
	}
}

func TestProbeSendFailureMarksUnresponsive(t *testing.T) {
	cfg := testConfig()
	cfg.StalenessThreshold = 50 * time.Millisecond
	p := newStartedPool(t, cfg)

	c, ft := register(t, p, "x", "owner")
	ft.pingErr = errors.New("broken pipe")

	backdate(c, time.Second)
	p.healthSweep()

	time.Sleep(50 * time.Millisecond)

	if got := c.Health(); got != Unresponsive {
		t.Errorf("Health after probe send failure = %v, want %v", got, Unresponsive)
	}
}

func TestStaleRecoversOnActivity(t *testing.T) {
	p := newStartedPool(t, testConfig())
	c, _ := register(t, p, "x", "owner")

	p.mu.Lock()
	c.setHealth(Stale)
	c.probePending = true // pretend a probe is already in flight
	p.mu.Unlock()

	p.Touch("x")
	p.healthSweep()

	if got := c.Health(); got != Healthy {
		t.Errorf("Health after activity returned = %v, want %v", got, Healthy)
	}
}

func TestUnresponsiveIsTerminalForHealthSweep(t *testing.T) {
	p := newStartedPool(t, testConfig())
	c, _ := register(t, p, "x", "owner")

	p.mu.Lock()
	c.setHealth(Unresponsive)
	c.unresponsiveSince = time.Now()
	p.mu.Unlock()

	p.Touch("x")
	p.healthSweep()

	if got := c.Health(); got != Unresponsive {
		t.Errorf("Health = %v, want %v (only the reaper advances past it)", got, Unresponsive)
	}
}

func TestProbeIgnoresRemovedConnection(t *testing.T) {
	cfg := testConfig()
	cfg.StalenessThreshold = 50 * time.Millisecond
	cfg.ProbeTimeout = time.Second
	p := newStartedPool(t, cfg)

	c, ft := register(t, p, "x", "owner")
	ft.pingDelay = 100 * time.Millisecond

	backdate(c, time.Second)
	p.healthSweep()

	// Remove while the probe is still in flight.
	p.Unregister("x")
	time.Sleep(200 * time.Millisecond)

	if got := p.Size(); got != 0 {
		t.Errorf("Size = %d, want 0", got)
	}
	if got := ft.closed(); got != 1 {
		t.Errorf("close calls = %d, want 1", got)
	}
}

func TestHealthLoopRunsOnTimer(t *testing.T) {
	cfg := testConfig()
	cfg.HealthInterval = 20 * time.Millisecond
	cfg.StalenessThreshold = 10 * time.Millisecond
	cfg.ProbeTimeout = 50 * time.Millisecond
	p := newStartedPool(t, cfg)

	c, ft := register(t, p, "x", "owner")
	ft.pingErr = errors.New("gone")
	backdate(c, time.Second)

	// Let the background loop pick it up.
	time.Sleep(150 * time.Millisecond)

	if got := c.Health(); got != Unresponsive {
		t.Errorf("Health after timed sweep = %v, want %v", got, Unresponsive)
	}
}
