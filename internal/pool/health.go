package pool

import (
	"context"
	"time"
)

// healthLoop runs the health monitor on its timer. The interval is re-read
// from the config each cycle so hot updates take effect on the next sweep.
func (p *pool) healthLoop() {
	defer p.wg.Done()

	for {
		p.mu.RLock()
		interval := p.cfg.HealthInterval
		p.mu.RUnlock()

		select {
		case <-p.ctx.Done():
			return
		case <-time.After(interval):
			p.healthSweep()
		}
	}
}

// healthSweep reclassifies every connection against the staleness threshold
// and collects probe candidates, all under one critical section. Probe
// dispatch happens outside the lock so a slow or hung peer cannot stall
// admission or removal of unrelated connections.
//
// State machine per connection:
//
//	healthy --(idle > staleness threshold)--> stale
//	stale   --(probe response in time)-----> healthy
//	stale   --(probe timeout or failure)---> unresponsive
//
// unresponsive is terminal here; only the reaper advances past it.
func (p *pool) healthSweep() {
	now := time.Now()

	p.mu.Lock()
	threshold := p.cfg.StalenessThreshold
	probeTimeout := p.cfg.ProbeTimeout

	var candidates []*Conn
	for _, c := range p.conns {
		idle := now.Sub(c.LastActivity())

		switch c.Health() {
		case Healthy:
			if idle > threshold {
				c.setHealth(Stale)
				c.staleSince = now
				if !c.probePending {
					c.probePending = true
					candidates = append(candidates, c)
				}
			}

		case Stale:
			if idle <= threshold {
				// Activity came back on its own.
				c.setHealth(Healthy)
				c.staleSince = time.Time{}
			} else if !c.probePending {
				c.probePending = true
				candidates = append(candidates, c)
			}

		case Unresponsive:
			// Waiting for the reaper.
		}
	}
	p.mu.Unlock()

	for _, c := range candidates {
		p.wg.Add(1)
		go p.probe(c, probeTimeout)
	}

	if len(candidates) > 0 {
		p.logger.Debug("health sweep dispatched probes", "count", len(candidates))
	}
}

// probe issues one liveness probe with its own timeout, independent of the
// sweep interval. A response in time restores the connection to healthy and
// refreshes its activity; a timeout or send failure marks it unresponsive.
// A record removed while the probe was in flight is left alone.
func (p *pool) probe(c *Conn, timeout time.Duration) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	err := c.transport.Ping(ctx)
	cancel()

	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	c.probePending = false
	if _, ok := p.conns[c.ID]; !ok {
		return
	}
	if c.Health() != Stale {
		return
	}

	if err != nil {
		c.setHealth(Unresponsive)
		c.unresponsiveSince = now
		p.probeFailures.Add(1)
		p.logger.Warn("liveness probe failed",
			"conn_id", c.ID,
			"owner", c.Owner,
			"error", err,
		)
		return
	}

	c.setHealth(Healthy)
	c.staleSince = time.Time{}
	c.touch(now)
}
