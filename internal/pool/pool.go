package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Pool manages the full lifecycle of admitted connections.
type Pool interface {
	// Start launches the health monitor and reaper sweeps.
	Start(ctx context.Context) error

	// Shutdown drains every live connection and stops the sweeps. It
	// completes when the drain finishes or its bound expires.
	Shutdown(ctx context.Context) error

	// Register admits a new connection, creating and indexing its record.
	// The admission check and the insert are a single atomic step.
	Register(t Transport, id Identity) (*Conn, error)

	// Unregister removes a connection and closes its transport. Unknown
	// ids are a silent no-op.
	Unregister(connID string)

	// Join adds a connection to a group. Returns false if the connection
	// is unknown; joining a group twice is a no-op success.
	Join(connID, group string) bool

	// Leave removes a connection from a group. Always succeeds, even if
	// the connection is unknown or not a member.
	Leave(connID, group string)

	// MembersOf returns a snapshot of a group's member records.
	MembersOf(group string) []*Conn

	// ConnectionsOf returns a snapshot of one owner's records.
	ConnectionsOf(owner string) []*Conn

	// GroupsOf returns a snapshot of the groups a connection belongs to.
	GroupsOf(connID string) []string

	// Get looks up a single connection record.
	Get(connID string) (*Conn, bool)

	// Size returns the number of registered connections.
	Size() int

	// Touch refreshes a connection's activity timestamp.
	Touch(connID string)

	// MarkInbound records one inbound message and refreshes activity.
	MarkInbound(connID string)

	// MarkOutbound records one outbound message and refreshes activity.
	MarkOutbound(connID string)

	// CanAcceptMore reports whether an admission attempt would currently
	// succeed, without admitting. Intended for back-pressure signaling.
	CanAcceptMore() bool

	// BroadcastGroup sends a payload to every member of a group and
	// returns the delivery count.
	BroadcastGroup(ctx context.Context, group string, payload []byte) int

	// BroadcastOwner sends a payload to every connection of one owner.
	BroadcastOwner(ctx context.Context, owner string, payload []byte) int

	// BroadcastAll sends a payload to every live connection.
	BroadcastAll(ctx context.Context, payload []byte) int

	// Snapshot computes point-in-time pool statistics.
	Snapshot() PoolStats

	// Config returns the current configuration.
	Config() Config

	// UpdateConfig atomically replaces the configuration. The new values
	// take effect on the next sweep.
	UpdateConfig(cfg Config) error
}

// lifecycleState tracks where the pool is in its start/drain cycle.
type lifecycleState int32

const (
	stateStopped lifecycleState = iota
	stateStarting
	stateRunning
	stateDraining
)

func (s lifecycleState) String() string {
	switch s {
	case stateStopped:
		return "stopped"
	case stateStarting:
		return "starting"
	case stateRunning:
		return "running"
	case stateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// pool implements the Pool interface.
type pool struct {
	logger    *slog.Logger
	memSignal func() (float64, error)

	// mu guards the record table, the index, the config, and the
	// lifecycle state. Mutations of any of them are serialized here;
	// probe and close I/O always happen outside it.
	mu      sync.RWMutex
	cfg     Config
	state   lifecycleState
	conns   map[string]*Conn
	index   *groupIndex
	drained chan struct{} // non-nil while draining; closed when the table empties

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Aggregate failure counters
	rejections    atomic.Uint64
	probeFailures atomic.Uint64
	closeFailures atomic.Uint64

	memSignalWarn sync.Once
}

// Option configures a pool.
type Option func(*pool)

// WithMemorySignal injects a system memory reading (used fraction in [0,1])
// consulted during admission. Signal errors are treated as no reading.
func WithMemorySignal(fn func() (float64, error)) Option {
	return func(p *pool) {
		p.memSignal = fn
	}
}

// New creates a connection pool. The configuration is validated on Start.
func New(cfg Config, logger *slog.Logger, opts ...Option) Pool {
	if logger == nil {
		logger = slog.Default()
	}

	p := &pool{
		logger: logger,
		cfg:    cfg,
		conns:  make(map[string]*Conn),
		index:  newGroupIndex(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Register admits a new connection.
func (p *pool) Register(t Transport, id Identity) (*Conn, error) {
	now := time.Now()
	memUsed := p.readMemorySignal()

	p.mu.Lock()
	if _, ok := p.conns[t.ID()]; ok {
		p.mu.Unlock()
		return nil, ErrDuplicateID
	}
	if err := p.admitLocked(id, memUsed); err != nil {
		p.mu.Unlock()
		p.rejections.Add(1)
		p.logger.Debug("admission rejected", "owner", id.Owner, "reason", err)
		return nil, err
	}

	c := newConn(t, id, now)
	p.conns[c.ID] = c
	p.index.addOwner(c)
	size := len(p.conns)
	p.mu.Unlock()

	p.logger.Debug("connection admitted",
		"conn_id", c.ID,
		"owner", c.Owner,
		"pool_size", size,
	)

	return c, nil
}

// Unregister removes a connection and closes its transport.
func (p *pool) Unregister(connID string) {
	p.removeAndClose(connID, "unregister")
}

// removeAndClose deletes the record and every index entry atomically, then
// closes the transport outside the lock. Safe to call concurrently for the
// same connection; the second remover observes "already gone" and no-ops.
func (p *pool) removeAndClose(connID, reason string) {
	p.mu.Lock()
	c, ok := p.conns[connID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.conns, connID)
	p.index.remove(c)
	p.finishDrainLocked()
	p.mu.Unlock()

	if err := c.closeTransport(reason); err != nil {
		p.closeFailures.Add(1)
		p.logger.Warn("transport close failed",
			"conn_id", connID,
			"reason", reason,
			"error", err,
		)
	}

	p.logger.Debug("connection removed", "conn_id", connID, "reason", reason)
}

// Join adds a connection to a group.
func (p *pool) Join(connID, group string) bool {
	p.mu.Lock()
	c, ok := p.conns[connID]
	if !ok {
		p.mu.Unlock()
		return false
	}
	added := p.index.join(c, group)
	p.mu.Unlock()

	if added {
		c.joins.Add(1)
	}
	return true
}

// Leave removes a connection from a group.
func (p *pool) Leave(connID, group string) {
	p.mu.Lock()
	c, ok := p.conns[connID]
	if !ok {
		p.mu.Unlock()
		return
	}
	removed := p.index.leave(c, group)
	p.mu.Unlock()

	if removed {
		c.leaves.Add(1)
	}
}

// MembersOf returns a snapshot of a group's members.
func (p *pool) MembersOf(group string) []*Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index.members(group)
}

// ConnectionsOf returns a snapshot of one owner's connections.
func (p *pool) ConnectionsOf(owner string) []*Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index.byOwner(owner)
}

// GroupsOf returns a snapshot of the groups a connection belongs to.
func (p *pool) GroupsOf(connID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.conns[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.groups))
	for group := range c.groups {
		out = append(out, group)
	}
	return out
}

// Get looks up a connection record.
func (p *pool) Get(connID string) (*Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[connID]
	return c, ok
}

// Size returns the number of registered connections.
func (p *pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// Touch refreshes a connection's activity timestamp.
func (p *pool) Touch(connID string) {
	if c, ok := p.Get(connID); ok {
		c.touch(time.Now())
	}
}

// MarkInbound records one inbound message.
func (p *pool) MarkInbound(connID string) {
	if c, ok := p.Get(connID); ok {
		c.touch(time.Now())
		c.msgsIn.Add(1)
	}
}

// MarkOutbound records one outbound message.
func (p *pool) MarkOutbound(connID string) {
	if c, ok := p.Get(connID); ok {
		c.touch(time.Now())
		c.msgsOut.Add(1)
	}
}

// BroadcastGroup sends a payload to every member of a group.
func (p *pool) BroadcastGroup(ctx context.Context, group string, payload []byte) int {
	p.mu.RLock()
	targets := p.index.members(group)
	p.mu.RUnlock()

	return p.deliver(ctx, targets, payload)
}

// BroadcastOwner sends a payload to every connection of one owner.
func (p *pool) BroadcastOwner(ctx context.Context, owner string, payload []byte) int {
	p.mu.RLock()
	targets := p.index.byOwner(owner)
	p.mu.RUnlock()

	return p.deliver(ctx, targets, payload)
}

// BroadcastAll sends a payload to every live connection.
func (p *pool) BroadcastAll(ctx context.Context, payload []byte) int {
	p.mu.RLock()
	targets := make([]*Conn, 0, len(p.conns))
	for _, c := range p.conns {
		targets = append(targets, c)
	}
	p.mu.RUnlock()

	return p.deliver(ctx, targets, payload)
}

// deliver sends a payload to each target outside the pool lock. Send
// failures are logged and skipped; the failing connection is left for the
// health monitor to classify.
func (p *pool) deliver(ctx context.Context, targets []*Conn, payload []byte) int {
	delivered := 0
	now := time.Now()

	for _, c := range targets {
		if err := c.transport.Send(ctx, payload); err != nil {
			p.logger.Debug("broadcast send failed", "conn_id", c.ID, "error", err)
			continue
		}
		c.touch(now)
		c.msgsOut.Add(1)
		delivered++
	}

	return delivered
}

// Config returns the current configuration.
func (p *pool) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// UpdateConfig atomically replaces the configuration.
func (p *pool) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()

	p.logger.Info("pool config updated",
		"max_connections", cfg.MaxConnections,
		"max_per_owner", cfg.MaxPerOwner,
		"health_interval", cfg.HealthInterval,
		"reap_interval", cfg.ReapInterval,
	)

	return nil
}
