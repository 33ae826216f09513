package pool

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// markUnresponsive forces a connection into the unresponsive state as if a
// probe had failed the given duration ago.
func markUnresponsive(p *pool, c *Conn, since time.Duration) {
	p.mu.Lock()
	c.setHealth(Unresponsive)
	c.unresponsiveSince = time.Now().Add(-since)
	p.mu.Unlock()
}

func TestReapRemovesExpiredUnresponsive(t *testing.T) {
	cfg := testConfig()
	cfg.ReapGrace = 50 * time.Millisecond
	p := newStartedPool(t, cfg)

	c, ft := register(t, p, "x", "owner")
	p.Join("x", "room")
	markUnresponsive(p, c, time.Second)

	p.reapSweep()

	if got := p.Size(); got != 0 {
		t.Errorf("Size after reap = %d, want 0", got)
	}
	if got := ft.closed(); got != 1 {
		t.Errorf("close calls = %d, want 1", got)
	}
	if ft.closeReason != "reaped" {
		t.Errorf("close reason = %q, want %q", ft.closeReason, "reaped")
	}

	p.mu.RLock()
	_, bucketExists := p.index.groups["room"]
	ownerCount := p.index.ownerCount("owner")
	p.mu.RUnlock()
	if bucketExists {
		t.Error("group bucket still present after reap")
	}
	if ownerCount != 0 {
		t.Errorf("owner bucket count = %d, want 0", ownerCount)
	}
}

func TestReapHonorsGracePeriod(t *testing.T) {
	cfg := testConfig()
	cfg.ReapGrace = time.Hour
	p := newStartedPool(t, cfg)

	c, ft := register(t, p, "x", "owner")
	markUnresponsive(p, c, time.Minute) // still inside the grace window

	p.reapSweep()

	if got := p.Size(); got != 1 {
		t.Errorf("Size = %d, want 1", got)
	}
	if got := ft.closed(); got != 0 {
		t.Errorf("close calls = %d, want 0", got)
	}
}

func TestReapSkipsHealthyAndStale(t *testing.T) {
	cfg := testConfig()
	cfg.ReapGrace = 0
	p := newStartedPool(t, cfg)

	_, ftHealthy := register(t, p, "h", "owner")
	cStale, ftStale := register(t, p, "s", "owner")

	p.mu.Lock()
	cStale.setHealth(Stale)
	p.mu.Unlock()

	p.reapSweep()

	if got := p.Size(); got != 2 {
		t.Errorf("Size = %d, want 2", got)
	}
	if ftHealthy.closed() != 0 || ftStale.closed() != 0 {
		t.Error("reaper closed a connection that was not unresponsive")
	}
}

func TestReapCloseFailureCountedNotPropagated(t *testing.T) {
	cfg := testConfig()
	cfg.ReapGrace = 0
	p := newStartedPool(t, cfg)

	c, ft := register(t, p, "x", "owner")
	ft.closeErr = errors.New("transport wedged")
	markUnresponsive(p, c, time.Second)

	p.reapSweep()

	// Bookkeeping wins: the record is gone even though close failed.
	if got := p.Size(); got != 0 {
		t.Errorf("Size = %d, want 0", got)
	}
	if got := p.Snapshot().CloseFailures; got != 1 {
		t.Errorf("CloseFailures = %d, want 1", got)
	}
}

func TestReapConcurrentWithUnregister(t *testing.T) {
	cfg := testConfig()
	cfg.ReapGrace = 0
	p := newStartedPool(t, cfg)

	c, ft := register(t, p, "x", "owner")
	markUnresponsive(p, c, time.Second)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.reapSweep()
	}()
	go func() {
		defer wg.Done()
		p.Unregister("x")
	}()
	wg.Wait()

	if got := p.Size(); got != 0 {
		t.Errorf("Size = %d, want 0", got)
	}
	if got := ft.closed(); got != 1 {
		t.Errorf("close calls = %d, want exactly 1", got)
	}
}

func TestReapLoopRunsOnTimer(t *testing.T) {
	cfg := testConfig()
	cfg.ReapInterval = 20 * time.Millisecond
	cfg.ReapGrace = 0
	p := newStartedPool(t, cfg)

	c, ft := register(t, p, "x", "owner")
	markUnresponsive(p, c, time.Second)

	time.Sleep(150 * time.Millisecond)

	if got := p.Size(); got != 0 {
		t.Errorf("Size after timed reap = %d, want 0", got)
	}
	if got := ft.closed(); got != 1 {
		t.Errorf("close calls = %d, want 1", got)
	}
}
