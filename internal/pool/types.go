package pool

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrPoolFull       = errors.New("pool at capacity")
	ErrOwnerLimit     = errors.New("owner connection limit reached")
	ErrMemoryPressure = errors.New("memory pressure too high")
	ErrDraining       = errors.New("pool is draining")
	ErrNotRunning     = errors.New("pool is not running")
	ErrDuplicateID    = errors.New("connection id already registered")
	ErrAlreadyStarted = errors.New("pool already started")
)

// HealthState classifies a connection's liveness.
type HealthState int32

const (
	// Healthy connections have shown activity within the staleness threshold.
	Healthy HealthState = iota

	// Stale connections have gone quiet; a liveness probe is pending or in flight.
	Stale

	// Unresponsive connections failed their probe and await the reaper.
	Unresponsive
)

// String returns the lowercase name of the health state.
func (s HealthState) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Stale:
		return "stale"
	case Unresponsive:
		return "unresponsive"
	default:
		return "unknown"
	}
}

// Transport is the capability set the pool requires from a connection handle.
// The pool never inspects payloads; it only manages bookkeeping around the
// handle. Inbound-message and disconnect notifications flow back into the
// pool through MarkInbound/Touch/Unregister calls made by the transport owner.
type Transport interface {
	// ID returns the unique connection identifier assigned by the transport layer.
	ID() string

	// Send writes a payload to the peer.
	Send(ctx context.Context, payload []byte) error

	// Ping issues a liveness probe and returns once a response is observed
	// or the context expires.
	Ping(ctx context.Context) error

	// Close tears down the underlying connection.
	Close(reason string) error
}

// Identity is the authenticated principal a connection belongs to. It is
// produced by an external auth step before registration; the pool never
// verifies credentials itself.
type Identity struct {
	Owner  string
	Claims map[string]any
}

// Config holds the pool's tunable limits and intervals. It is supplied at
// construction and may be hot-updated at runtime; updates are atomic
// replace-by-value and take effect on the next sweep.
type Config struct {
	MaxConnections int // Capacity ceiling (0 = unlimited)
	MaxPerOwner    int // Per-owner connection ceiling (0 = unlimited)

	HealthInterval     time.Duration // Health monitor sweep interval
	StalenessThreshold time.Duration // Idle time before a connection is considered stale
	ProbeTimeout       time.Duration // Liveness probe timeout, independent of the sweep interval
	ReapInterval       time.Duration // Reaper sweep interval (coarser than the health sweep)
	ReapGrace          time.Duration // Time a connection may stay unresponsive before reaping
	DrainTimeout       time.Duration // Bound on the graceful-drain phase of shutdown

	PerConnOverheadBytes       int64   // Estimated memory cost per connection
	PerMembershipOverheadBytes int64   // Estimated memory cost per group membership
	MaxEstimatedMemoryBytes    int64   // Ceiling on the estimated footprint (0 = unlimited)
	MemoryPressureThreshold    float64 // System memory used fraction above which admissions stop (0 = disabled)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnections:             10000,
		HealthInterval:             30 * time.Second,
		StalenessThreshold:         90 * time.Second,
		ProbeTimeout:               10 * time.Second,
		ReapInterval:               60 * time.Second,
		ReapGrace:                  120 * time.Second,
		DrainTimeout:               15 * time.Second,
		PerConnOverheadBytes:       16 * 1024,
		PerMembershipOverheadBytes: 256,
		MemoryPressureThreshold:    0.9,
	}
}

// Validate checks interval and threshold values. Called on Start and on
// every UpdateConfig so a bad hot update never reaches the sweep loops.
func (c Config) Validate() error {
	if c.MaxConnections < 0 {
		return errors.New("max connections must be >= 0")
	}
	if c.MaxPerOwner < 0 {
		return errors.New("max per owner must be >= 0")
	}
	if c.HealthInterval <= 0 {
		return errors.New("health interval must be > 0")
	}
	if c.StalenessThreshold <= 0 {
		return errors.New("staleness threshold must be > 0")
	}
	if c.ProbeTimeout <= 0 {
		return errors.New("probe timeout must be > 0")
	}
	if c.ReapInterval <= 0 {
		return errors.New("reap interval must be > 0")
	}
	if c.ReapGrace < 0 {
		return errors.New("reap grace must be >= 0")
	}
	if c.DrainTimeout <= 0 {
		return errors.New("drain timeout must be > 0")
	}
	if c.PerConnOverheadBytes < 0 || c.PerMembershipOverheadBytes < 0 {
		return errors.New("overhead estimates must be >= 0")
	}
	if c.MaxEstimatedMemoryBytes < 0 {
		return errors.New("max estimated memory must be >= 0")
	}
	if c.MemoryPressureThreshold < 0 || c.MemoryPressureThreshold > 1 {
		return errors.New("memory pressure threshold must be between 0 and 1")
	}
	return nil
}

// PoolStats is a point-in-time view of the pool, computed by Snapshot.
type PoolStats struct {
	State             string         `json:"state"`
	TotalConnections  int            `json:"total_connections"`
	HealthyCount      int            `json:"healthy"`
	StaleCount        int            `json:"stale"`
	UnresponsiveCount int            `json:"unresponsive"`
	Owners            int            `json:"owners"`
	Groups            map[string]int `json:"groups"`

	// EstimatedMemoryBytes = connections * per-connection overhead
	// + total group memberships * per-membership overhead.
	EstimatedMemoryBytes int64 `json:"estimated_memory_bytes"`

	MessagesIn  uint64 `json:"messages_in"`
	MessagesOut uint64 `json:"messages_out"`
	GroupJoins  uint64 `json:"group_joins"`
	GroupLeaves uint64 `json:"group_leaves"`

	// AvgMessagesPerConn is the average in+out message count per live
	// connection since its admission.
	AvgMessagesPerConn float64 `json:"avg_messages_per_conn"`

	Rejections    uint64    `json:"rejections"`
	ProbeFailures uint64    `json:"probe_failures"`
	CloseFailures uint64    `json:"close_failures"`
	TakenAt       time.Time `json:"taken_at"`
}
