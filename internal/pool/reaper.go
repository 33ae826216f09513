package pool

import "time"

// reapLoop runs the reaper on its own timer, coarser than the health sweep.
func (p *pool) reapLoop() {
	defer p.wg.Done()

	for {
		p.mu.RLock()
		interval := p.cfg.ReapInterval
		p.mu.RUnlock()

		select {
		case <-p.ctx.Done():
			return
		case <-time.After(interval):
			p.reapSweep()
		}
	}
}

// reapSweep removes every connection that has stayed unresponsive past the
// grace period. Victims are collected under a read lock, then closed and
// removed through the same path as a manual unregister, so a concurrent
// disconnect of the same connection is a harmless no-op. Close failures are
// counted inside removeAndClose and never abort the sweep.
func (p *pool) reapSweep() {
	now := time.Now()

	p.mu.RLock()
	grace := p.cfg.ReapGrace
	var victims []string
	for id, c := range p.conns {
		if c.Health() == Unresponsive && now.Sub(c.unresponsiveSince) > grace {
			victims = append(victims, id)
		}
	}
	p.mu.RUnlock()

	for _, id := range victims {
		p.removeAndClose(id, "reaped")
	}

	if len(victims) > 0 {
		p.logger.Info("reaped unresponsive connections", "count", len(victims))
	}
}
