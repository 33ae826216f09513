// pushtest connects throwaway clients to a running pushgate instance and
// streams whatever the gateway pushes back to the console.
//
// Usage:
//
//	go run ./cmd/pushtest --url ws://localhost:8080/ws --secret dev-secret --conns 5 --group news
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

func main() {
	urlFlag := flag.String("url", "ws://localhost:8080/ws", "pushgate websocket endpoint")
	secret := flag.String("secret", "", "JWT signing secret (must match the gateway)")
	owner := flag.String("owner", "pushtest", "owner id to connect as")
	conns := flag.Int("conns", 1, "number of concurrent connections")
	group := flag.String("group", "", "group to join after connecting")
	verbose := flag.Bool("verbose", false, "print every received message")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *secret == "" {
		logger.Error("a signing secret is required (--secret)")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	token, err := signToken(*secret, *owner)
	if err != nil {
		logger.Error("failed to sign token", "error", err)
		os.Exit(1)
	}

	var (
		received  atomic.Uint64
		connected atomic.Int64
		wg        sync.WaitGroup
	)

	for i := 0; i < *conns; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runClient(ctx, n, *urlFlag, token, *group, *verbose, &received, &connected, logger)
		}(i)
	}

	// Periodic stats so long runs show signs of life.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				logger.Info("stats",
					"connected", connected.Load(),
					"received", received.Load(),
				)
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Info("clients started - press Ctrl+C to stop",
		"conns", *conns,
		"owner", *owner,
		"group", *group,
	)

	wg.Wait()
	logger.Info("all clients stopped", "received", received.Load())
}

// signToken mints a short-lived HS256 token the gateway will accept.
func signToken(secret, owner string) (string, error) {
	claims := jwt.MapClaims{
		"sub": owner,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(12 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func runClient(ctx context.Context, n int, url, token, group string, verbose bool, received *atomic.Uint64, connected *atomic.Int64, logger *slog.Logger) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		logger.Error("dial failed", "client", n, "error", err)
		return
	}
	defer conn.Close()

	connected.Add(1)
	defer connected.Add(-1)

	if group != "" {
		join, _ := json.Marshal(map[string]string{"op": "join", "group": group})
		if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
			logger.Error("join failed", "client", n, "error", err)
			return
		}
	}

	// Close politely when the run is cancelled so the gateway sees a normal
	// closure instead of a dropped socket.
	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("read failed", "client", n, "error", err)
			}
			return
		}
		received.Add(1)
		if verbose {
			fmt.Printf("[client %d] %s\n", n, data)
		}
	}
}
