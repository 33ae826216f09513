package config

import "time"

// GatewayConfig is the root configuration for a pushgate instance.
type GatewayConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Pool      PoolConfig      `yaml:"pool"`
	Transport TransportConfig `yaml:"transport"`
	Memory    MemoryConfig    `yaml:"memory"`
}

// InstanceConfig identifies this gateway.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr                  string        `yaml:"addr"`
	ReadHeaderTimeout     time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout       time.Duration `yaml:"shutdown_timeout"`
	MaxConcurrentUpgrades int64         `yaml:"max_concurrent_upgrades"`
}

// AuthConfig holds the token verification settings for the /ws endpoint.
type AuthConfig struct {
	Secret string        `yaml:"secret"` // HMAC signing key (use ${VAR} substitution)
	Issuer string        `yaml:"issuer"` // Expected iss claim; empty skips the check
	Leeway time.Duration `yaml:"leeway"` // Clock skew allowance for exp/nbf
}

// PoolConfig holds the connection pool limits and sweep intervals.
type PoolConfig struct {
	MaxConnections int `yaml:"max_connections"`
	MaxPerOwner    int `yaml:"max_per_owner"`

	HealthInterval     time.Duration `yaml:"health_interval"`
	StalenessThreshold time.Duration `yaml:"staleness_threshold"`
	ProbeTimeout       time.Duration `yaml:"probe_timeout"`
	ReapInterval       time.Duration `yaml:"reap_interval"`
	ReapGrace          time.Duration `yaml:"reap_grace"`
	DrainTimeout       time.Duration `yaml:"drain_timeout"`

	PerConnOverheadBytes       int64   `yaml:"per_conn_overhead_bytes"`
	PerMembershipOverheadBytes int64   `yaml:"per_membership_overhead_bytes"`
	MaxEstimatedMemoryBytes    int64   `yaml:"max_estimated_memory_bytes"`
	MemoryPressureThreshold    float64 `yaml:"memory_pressure_threshold"`
}

// TransportConfig holds per-socket WebSocket settings.
type TransportConfig struct {
	SendBufferSize   int           `yaml:"send_buffer_size"` // Outbound queue depth per connection
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ReadLimit        int64         `yaml:"read_limit"` // Max inbound frame size in bytes
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// MemoryConfig holds the system memory signal settings.
type MemoryConfig struct {
	SampleTTL time.Duration `yaml:"sample_ttl"` // How long one gopsutil reading is reused
}
