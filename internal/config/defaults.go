package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddr                  = ":8080"
	DefaultReadHeaderTimeout     = 5 * time.Second
	DefaultShutdownTimeout       = 10 * time.Second
	DefaultMaxConcurrentUpgrades = 64

	DefaultAuthLeeway = 30 * time.Second

	DefaultMaxConnections          = 10000
	DefaultHealthInterval          = 30 * time.Second
	DefaultStalenessThreshold      = 90 * time.Second
	DefaultProbeTimeout            = 10 * time.Second
	DefaultReapInterval            = 60 * time.Second
	DefaultReapGrace               = 120 * time.Second
	DefaultDrainTimeout            = 15 * time.Second
	DefaultPerConnOverhead         = 16 * 1024
	DefaultPerMembershipOverhead   = 256
	DefaultMemoryPressureThreshold = 0.9

	DefaultSendBufferSize   = 64
	DefaultWriteTimeout     = 10 * time.Second
	DefaultReadLimit        = 1 << 20
	DefaultHandshakeTimeout = 10 * time.Second

	DefaultMemorySampleTTL = 2 * time.Second
)

func (c *GatewayConfig) applyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.MaxConcurrentUpgrades == 0 {
		c.Server.MaxConcurrentUpgrades = DefaultMaxConcurrentUpgrades
	}

	// Auth defaults
	if c.Auth.Leeway == 0 {
		c.Auth.Leeway = DefaultAuthLeeway
	}

	// Pool defaults
	if c.Pool.MaxConnections == 0 {
		c.Pool.MaxConnections = DefaultMaxConnections
	}
	if c.Pool.HealthInterval == 0 {
		c.Pool.HealthInterval = DefaultHealthInterval
	}
	if c.Pool.StalenessThreshold == 0 {
		c.Pool.StalenessThreshold = DefaultStalenessThreshold
	}
	if c.Pool.ProbeTimeout == 0 {
		c.Pool.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Pool.ReapInterval == 0 {
		c.Pool.ReapInterval = DefaultReapInterval
	}
	if c.Pool.ReapGrace == 0 {
		c.Pool.ReapGrace = DefaultReapGrace
	}
	if c.Pool.DrainTimeout == 0 {
		c.Pool.DrainTimeout = DefaultDrainTimeout
	}
	if c.Pool.PerConnOverheadBytes == 0 {
		c.Pool.PerConnOverheadBytes = DefaultPerConnOverhead
	}
	if c.Pool.PerMembershipOverheadBytes == 0 {
		c.Pool.PerMembershipOverheadBytes = DefaultPerMembershipOverhead
	}
	if c.Pool.MemoryPressureThreshold == 0 {
		c.Pool.MemoryPressureThreshold = DefaultMemoryPressureThreshold
	}

	// Transport defaults
	if c.Transport.SendBufferSize == 0 {
		c.Transport.SendBufferSize = DefaultSendBufferSize
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.ReadLimit == 0 {
		c.Transport.ReadLimit = DefaultReadLimit
	}
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}

	// Memory defaults
	if c.Memory.SampleTTL == 0 {
		c.Memory.SampleTTL = DefaultMemorySampleTTL
	}
}
