package pool

import (
	"sync"
	"sync/atomic"
	"time"
)

// Conn is the record for one admitted connection. ID, Owner, Claims, and
// AdmittedAt are immutable after admission. Activity and message counters
// are updated lock-free; group membership and health bookkeeping are
// guarded by the pool lock.
type Conn struct {
	ID         string
	Owner      string
	Claims     map[string]any
	AdmittedAt time.Time

	transport Transport

	// Activity tracking (unix nanos, lock-free)
	lastActivity atomic.Int64
	health       atomic.Int32

	// Guarded by the pool lock
	groups            map[string]struct{}
	staleSince        time.Time
	unresponsiveSince time.Time
	probePending      bool

	// Monotonic counters
	msgsIn  atomic.Uint64
	msgsOut atomic.Uint64
	joins   atomic.Uint64
	leaves  atomic.Uint64

	closeOnce sync.Once
}

func newConn(t Transport, id Identity, now time.Time) *Conn {
	c := &Conn{
		ID:         t.ID(),
		Owner:      id.Owner,
		Claims:     id.Claims,
		AdmittedAt: now,
		transport:  t,
		groups:     make(map[string]struct{}),
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

// Health returns the connection's current health state.
func (c *Conn) Health() HealthState {
	return HealthState(c.health.Load())
}

func (c *Conn) setHealth(s HealthState) {
	c.health.Store(int32(s))
}

// LastActivity returns the time of the most recent inbound or outbound message.
func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *Conn) touch(now time.Time) {
	c.lastActivity.Store(now.UnixNano())
}

// MessagesIn returns the number of inbound messages recorded for this connection.
func (c *Conn) MessagesIn() uint64 { return c.msgsIn.Load() }

// MessagesOut returns the number of outbound messages recorded for this connection.
func (c *Conn) MessagesOut() uint64 { return c.msgsOut.Load() }

// GroupJoins returns the number of group joins performed by this connection.
func (c *Conn) GroupJoins() uint64 { return c.joins.Load() }

// GroupLeaves returns the number of group leaves performed by this connection.
func (c *Conn) GroupLeaves() uint64 { return c.leaves.Load() }

// closeTransport closes the underlying transport at most once. Callers that
// lose the race observe a nil error; only the invocation that performs the
// close sees its outcome.
func (c *Conn) closeTransport(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		err = c.transport.Close(reason)
	})
	return err
}
