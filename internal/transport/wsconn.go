package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Options configures a single WebSocket connection.
type Options struct {
	SendBufferSize int           // Outbound queue depth
	WriteTimeout   time.Duration // Write deadline for data and control frames
	ReadLimit      int64         // Max inbound frame size in bytes
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		SendBufferSize: 64,
		WriteTimeout:   10 * time.Second,
		ReadLimit:      1 << 20,
	}
}

// WSConn wraps a server-side WebSocket connection. All data frames are
// written by a single pump goroutine; control frames go through WriteControl,
// which gorilla allows concurrently.
type WSConn struct {
	id     string
	conn   *websocket.Conn
	opts   Options
	logger *slog.Logger

	// OnMessage receives every inbound data frame. OnClose fires exactly once
	// when the connection tears down, with the read error that ended it.
	// Both must be assigned before Run.
	OnMessage func(data []byte)
	OnClose   func(err error)

	sendCh chan []byte
	done   chan struct{}

	mu          sync.Mutex
	pongWaiters []chan struct{}

	closeOnce   sync.Once
	closeNotify sync.Once
}

// NewWSConn wraps an upgraded connection. The connection ID is minted here
// and never changes.
func NewWSConn(conn *websocket.Conn, opts Options, logger *slog.Logger) *WSConn {
	if logger == nil {
		logger = slog.Default()
	}

	return &WSConn{
		id:     uuid.NewString(),
		conn:   conn,
		opts:   opts,
		logger: logger,
		sendCh: make(chan []byte, opts.SendBufferSize),
		done:   make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *WSConn) ID() string {
	return c.id
}

// Run starts the read and write pumps. Callbacks must be assigned before Run.
func (c *WSConn) Run() {
	go c.writePump()
	go c.readPump()
}

// Send enqueues a payload for the write pump. It never blocks: a full
// outbound queue fails fast so one slow peer cannot stall a broadcast.
func (c *WSConn) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.sendCh <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Ping sends a ping control frame and waits for any pong from the peer or
// context expiry.
func (c *WSConn) Ping(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	wait := c.addPongWaiter()

	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.WriteControl(websocket.PingMessage, []byte("probe"), deadline); err != nil {
		return fmt.Errorf("write ping: %w", err)
	}

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// Close tears down the connection: best-effort close frame, then socket
// close. Safe to call more than once; later calls return nil.
func (c *WSConn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()

		c.logger.Debug("websocket closed",
			"conn_id", c.id,
			"reason", reason,
		)
	})
	return err
}

// writePump owns all data-frame writes until the connection closes.
func (c *WSConn) writePump() {
	for {
		select {
		case payload := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("websocket write failed",
					"conn_id", c.id,
					"error", err,
				)
				c.Close("write failure")
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump delivers inbound frames until the socket errors, then fires
// OnClose once.
func (c *WSConn) readPump() {
	c.conn.SetReadLimit(c.opts.ReadLimit)
	c.conn.SetPongHandler(func(string) error {
		c.notifyPong()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.teardown(err)
			return
		}
		if c.OnMessage != nil {
			c.OnMessage(data)
		}
	}
}

func (c *WSConn) teardown(err error) {
	c.Close("read ended")
	c.closeNotify.Do(func() {
		if c.OnClose != nil {
			c.OnClose(err)
		}
	})
}

func (c *WSConn) addPongWaiter() chan struct{} {
	ch := make(chan struct{})
	c.mu.Lock()
	c.pongWaiters = append(c.pongWaiters, ch)
	c.mu.Unlock()
	return ch
}

// notifyPong releases every in-flight Ping. A pong proves liveness no matter
// which ping it answers.
func (c *WSConn) notifyPong() {
	c.mu.Lock()
	waiters := c.pongWaiters
	c.pongWaiters = nil
	c.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}
