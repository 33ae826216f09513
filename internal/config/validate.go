package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.MaxConcurrentUpgrades < 1 {
		return errors.New("server.max_concurrent_upgrades must be >= 1")
	}

	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	if c.Auth.Leeway < 0 {
		return errors.New("auth.leeway must be >= 0")
	}

	if err := c.Pool.validate(); err != nil {
		return err
	}

	if c.Transport.SendBufferSize < 1 {
		return errors.New("transport.send_buffer_size must be >= 1")
	}
	if c.Transport.WriteTimeout <= 0 {
		return errors.New("transport.write_timeout must be > 0")
	}
	if c.Transport.ReadLimit < 1 {
		return errors.New("transport.read_limit must be >= 1")
	}

	if c.Memory.SampleTTL <= 0 {
		return errors.New("memory.sample_ttl must be > 0")
	}

	return nil
}

func (p *PoolConfig) validate() error {
	if p.MaxConnections < 0 {
		return errors.New("pool.max_connections must be >= 0")
	}
	if p.MaxPerOwner < 0 {
		return errors.New("pool.max_per_owner must be >= 0")
	}
	if p.HealthInterval <= 0 {
		return errors.New("pool.health_interval must be > 0")
	}
	if p.StalenessThreshold <= 0 {
		return errors.New("pool.staleness_threshold must be > 0")
	}
	if p.ProbeTimeout <= 0 {
		return errors.New("pool.probe_timeout must be > 0")
	}
	if p.ReapInterval <= 0 {
		return errors.New("pool.reap_interval must be > 0")
	}
	if p.ReapGrace < 0 {
		return errors.New("pool.reap_grace must be >= 0")
	}
	if p.DrainTimeout <= 0 {
		return errors.New("pool.drain_timeout must be > 0")
	}
	if p.PerConnOverheadBytes < 0 || p.PerMembershipOverheadBytes < 0 {
		return errors.New("pool overhead estimates must be >= 0")
	}
	if p.MaxEstimatedMemoryBytes < 0 {
		return errors.New("pool.max_estimated_memory_bytes must be >= 0")
	}
	if p.MemoryPressureThreshold < 0 || p.MemoryPressureThreshold > 1 {
		return fmt.Errorf("pool.memory_pressure_threshold must be between 0 and 1, got %g", p.MemoryPressureThreshold)
	}
	return nil
}
