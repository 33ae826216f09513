package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Start validates the configuration and launches the health monitor and
// reaper loops. Starting an already-running pool returns ErrAlreadyStarted.
func (p *pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != stateStopped {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	if err := p.cfg.Validate(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("validate config: %w", err)
	}
	p.state = stateStarting
	p.ctx, p.cancel = context.WithCancel(ctx)
	cfg := p.cfg
	p.mu.Unlock()

	p.wg.Add(2)
	go p.healthLoop()
	go p.reapLoop()

	p.mu.Lock()
	if p.state == stateStarting {
		p.state = stateRunning
	}
	p.mu.Unlock()

	p.logger.Info("pool started",
		"max_connections", cfg.MaxConnections,
		"health_interval", cfg.HealthInterval,
		"reap_interval", cfg.ReapInterval,
		"drain_timeout", cfg.DrainTimeout,
	)

	return nil
}

// Shutdown drains the pool: admissions stop, every live connection receives
// a shutdown notice and a bounded window to disconnect on its own, and any
// stragglers are force-closed. Every connection present at drain start ends
// up closed exactly once and removed from all indexes; the pool never leaks
// records or leaves timers running. Calling Shutdown while a drain is
// already in progress, or on a stopped pool, returns immediately.
func (p *pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.state == stateDraining {
		p.mu.Unlock()
		return nil
	}
	if p.state == stateStopped && len(p.conns) == 0 {
		p.mu.Unlock()
		return nil
	}

	p.state = stateDraining
	if p.cancel != nil {
		p.cancel()
	}

	drainTimeout := p.cfg.DrainTimeout
	targets := make([]*Conn, 0, len(p.conns))
	for _, c := range p.conns {
		targets = append(targets, c)
	}
	var drainCh chan struct{}
	if len(targets) > 0 {
		p.drained = make(chan struct{})
		drainCh = p.drained
	}
	p.mu.Unlock()

	p.logger.Info("pool draining",
		"connections", len(targets),
		"timeout", drainTimeout,
	)

	if len(targets) > 0 {
		notice := shutdownNotice()
		for _, c := range targets {
			if err := c.transport.Send(ctx, notice); err != nil {
				p.logger.Debug("drain notice send failed", "conn_id", c.ID, "error", err)
				continue
			}
			c.msgsOut.Add(1)
		}

		// Give peers the drain window to disconnect on their own.
		select {
		case <-drainCh:
		case <-time.After(drainTimeout):
		case <-ctx.Done():
		}

		p.mu.RLock()
		remaining := make([]string, 0, len(p.conns))
		for id := range p.conns {
			remaining = append(remaining, id)
		}
		p.mu.RUnlock()

		for _, id := range remaining {
			p.removeAndClose(id, "drain")
		}
		if len(remaining) > 0 {
			p.logger.Warn("force closed connections at drain deadline", "count", len(remaining))
		}
	}

	p.wg.Wait()

	p.mu.Lock()
	p.state = stateStopped
	p.drained = nil
	p.mu.Unlock()

	p.logger.Info("pool stopped")
	return nil
}

// finishDrainLocked signals the drain waiter once the table empties. Called
// with the pool lock held by every removal path.
func (p *pool) finishDrainLocked() {
	if p.state != stateDraining || len(p.conns) != 0 || p.drained == nil {
		return
	}
	close(p.drained)
	p.drained = nil
}

// shutdownNotice is the final payload sent to every connection before the
// drain window opens.
func shutdownNotice() []byte {
	data, _ := json.Marshal(map[string]string{
		"type":   "shutdown",
		"reason": "draining",
	})
	return data
}
