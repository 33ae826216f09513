package pool

// readMemorySignal samples the injected system-memory signal. Called outside
// the pool lock because the sample may do syscall I/O. Returns -1 when no
// signal is configured or the reading failed; a broken signal must not block
// admissions.
func (p *pool) readMemorySignal() float64 {
	if p.memSignal == nil {
		return -1
	}
	used, err := p.memSignal()
	if err != nil {
		p.memSignalWarn.Do(func() {
			p.logger.Warn("memory signal unavailable", "error", err)
		})
		return -1
	}
	return used
}

// admitLocked decides whether a new connection for the given identity may
// be admitted right now. Called with the pool lock held so the decision and
// the subsequent insert form one atomic step; two concurrent registrations
// can never both pass a ceiling of one. No side effects on rejection.
// memUsed is the pre-sampled system memory fraction (-1 if unavailable).
func (p *pool) admitLocked(id Identity, memUsed float64) error {
	switch p.state {
	case stateDraining:
		return ErrDraining
	case stateStopped:
		return ErrNotRunning
	}

	if p.cfg.MaxConnections > 0 && len(p.conns) >= p.cfg.MaxConnections {
		return ErrPoolFull
	}

	if p.cfg.MaxPerOwner > 0 && p.index.ownerCount(id.Owner) >= p.cfg.MaxPerOwner {
		return ErrOwnerLimit
	}

	if p.cfg.MaxEstimatedMemoryBytes > 0 {
		if p.estimatedMemoryLocked() >= p.cfg.MaxEstimatedMemoryBytes {
			return ErrMemoryPressure
		}
	}

	if p.cfg.MemoryPressureThreshold > 0 && memUsed >= p.cfg.MemoryPressureThreshold {
		return ErrMemoryPressure
	}

	return nil
}

// estimatedMemoryLocked computes the pool's estimated footprint: records
// times the per-connection overhead plus group memberships times the
// per-membership overhead. Called with the pool lock held.
func (p *pool) estimatedMemoryLocked() int64 {
	return int64(len(p.conns))*p.cfg.PerConnOverheadBytes +
		int64(p.index.memberships)*p.cfg.PerMembershipOverheadBytes
}

// CanAcceptMore reports whether an admission would currently succeed. It
// runs the same predicate as Register without inserting, for back-pressure
// endpoints. Per-owner limits are not evaluated since no owner is known.
func (p *pool) CanAcceptMore() bool {
	memUsed := p.readMemorySignal()

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.state == stateDraining || p.state == stateStopped {
		return false
	}
	if p.cfg.MaxConnections > 0 && len(p.conns) >= p.cfg.MaxConnections {
		return false
	}
	if p.cfg.MaxEstimatedMemoryBytes > 0 && p.estimatedMemoryLocked() >= p.cfg.MaxEstimatedMemoryBytes {
		return false
	}
	if p.cfg.MemoryPressureThreshold > 0 && memUsed >= p.cfg.MemoryPressureThreshold {
		return false
	}
	return true
}
