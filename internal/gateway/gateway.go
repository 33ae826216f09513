package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/semaphore"

	"github.com/meridianhq/pushgate/internal/pool"
	"github.com/meridianhq/pushgate/internal/transport"
)

var pongPayload = []byte(`{"type":"pong"}`)

// Config holds the gateway's HTTP-facing knobs.
type Config struct {
	MaxConcurrentUpgrades int64         // Handshakes allowed in flight at once
	HandshakeTimeout      time.Duration // WebSocket upgrade deadline
	Transport             transport.Options
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentUpgrades: 64,
		HandshakeTimeout:      10 * time.Second,
		Transport:             transport.DefaultOptions(),
	}
}

// Gateway terminates client WebSockets and feeds them into the pool.
type Gateway struct {
	pool     pool.Pool
	verifier *TokenVerifier
	logger   *slog.Logger

	upgrader websocket.Upgrader
	upgrades *semaphore.Weighted
	wsOpts   transport.Options
}

// New creates a gateway around an already-started pool.
func New(cfg Config, p pool.Pool, verifier *TokenVerifier, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		pool:     p,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.HandshakeTimeout,
			// Auth is token based; origin enforcement is left to the edge.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		upgrades: semaphore.NewWeighted(cfg.MaxConcurrentUpgrades),
		wsOpts:   cfg.Transport,
	}
}

// Routes returns the gateway's HTTP mux.
func (g *Gateway) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	mux.HandleFunc("/healthz", g.handleHealthz)
	mux.HandleFunc("/statsz", g.handleStatsz)
	mux.HandleFunc("/v1/broadcast", g.handleBroadcast)
	return mux
}

// handleWS authenticates the request, upgrades the socket, and registers the
// connection. The CanAcceptMore pre-check refuses cheaply before any socket
// work; Register stays authoritative, so a race loser is closed after the
// upgrade with a policy-violation frame.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	if !g.upgrades.TryAcquire(1) {
		http.Error(w, "too many handshakes in flight", http.StatusServiceUnavailable)
		return
	}
	defer g.upgrades.Release(1)

	id, err := g.verifier.Verify(tokenFromRequest(r))
	if err != nil {
		g.logger.Warn("websocket token rejected",
			"remote", r.RemoteAddr,
			"error", err,
		)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !g.pool.CanAcceptMore() {
		g.logger.Debug("upgrade refused, pool not accepting", "owner", id.Owner)
		http.Error(w, "pool at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		g.logger.Debug("websocket upgrade failed",
			"remote", r.RemoteAddr,
			"error", err,
		)
		return
	}

	wc := transport.NewWSConn(conn, g.wsOpts, g.logger)
	rec, err := g.pool.Register(wc, id)
	if err != nil {
		g.logger.Info("admission rejected after upgrade",
			"owner", id.Owner,
			"error", err,
		)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	wc.OnMessage = func(data []byte) {
		g.handleClientMessage(rec, wc, data)
	}
	wc.OnClose = func(err error) {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			g.logger.Debug("connection ended abnormally",
				"conn_id", rec.ID,
				"error", err,
			)
		}
		g.pool.Unregister(rec.ID)
	}
	wc.Run()

	hello, _ := json.Marshal(map[string]string{
		"type":    "hello",
		"conn_id": rec.ID,
		"owner":   rec.Owner,
	})
	if err := wc.Send(context.Background(), hello); err == nil {
		g.pool.MarkOutbound(rec.ID)
	}
}

// handleClientMessage dispatches one inbound frame. Recognized ops manage
// group membership; everything else is passthrough activity.
func (g *Gateway) handleClientMessage(rec *pool.Conn, wc *transport.WSConn, data []byte) {
	g.pool.MarkInbound(rec.ID)

	op := gjson.GetBytes(data, "op")
	if !op.Exists() {
		return
	}

	switch op.String() {
	case "join":
		group := gjson.GetBytes(data, "group").String()
		if group == "" {
			return
		}
		g.pool.Join(rec.ID, group)
	case "leave":
		group := gjson.GetBytes(data, "group").String()
		if group == "" {
			return
		}
		g.pool.Leave(rec.ID, group)
	case "ping":
		if err := wc.Send(context.Background(), pongPayload); err == nil {
			g.pool.MarkOutbound(rec.ID)
		}
	}
}
