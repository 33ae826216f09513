package pool

import "time"

// Snapshot computes a point-in-time view of the pool. It is a pure read
// and O(pool size); nothing is mutated.
func (p *pool) Snapshot() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStats{
		State:                p.state.String(),
		TotalConnections:     len(p.conns),
		Owners:               len(p.index.owners),
		Groups:               make(map[string]int, len(p.index.groups)),
		EstimatedMemoryBytes: p.estimatedMemoryLocked(),
		Rejections:           p.rejections.Load(),
		ProbeFailures:        p.probeFailures.Load(),
		CloseFailures:        p.closeFailures.Load(),
		TakenAt:              time.Now(),
	}

	for group, bucket := range p.index.groups {
		stats.Groups[group] = len(bucket)
	}

	for _, c := range p.conns {
		switch c.Health() {
		case Healthy:
			stats.HealthyCount++
		case Stale:
			stats.StaleCount++
		case Unresponsive:
			stats.UnresponsiveCount++
		}
		stats.MessagesIn += c.msgsIn.Load()
		stats.MessagesOut += c.msgsOut.Load()
		stats.GroupJoins += c.joins.Load()
		stats.GroupLeaves += c.leaves.Load()
	}

	if len(p.conns) > 0 {
		stats.AvgMessagesPerConn = float64(stats.MessagesIn+stats.MessagesOut) / float64(len(p.conns))
	}

	return stats
}
