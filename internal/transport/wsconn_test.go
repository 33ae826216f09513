package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newTestConn upgrades one peer against an in-process server and returns the
// wrapped server side plus the raw client side.
func newTestConn(t *testing.T, opts Options) (*WSConn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	connCh := make(chan *WSConn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		connCh <- NewWSConn(conn, opts, nil)
	}))
	t.Cleanup(server.Close)

	peer, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { peer.Close() })

	wc := <-connCh
	t.Cleanup(func() { wc.Close("test done") })

	return wc, peer
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSConn_IDs(t *testing.T) {
	a, _ := newTestConn(t, DefaultOptions())
	b, _ := newTestConn(t, DefaultOptions())

	if a.ID() == "" {
		t.Error("expected a non-empty connection id")
	}
	if a.ID() == b.ID() {
		t.Errorf("two connections share id %q", a.ID())
	}
}

func TestWSConn_Send(t *testing.T) {
	wc, peer := newTestConn(t, DefaultOptions())
	wc.Run()

	testMsg := []byte(`{"test": "message"}`)
	if err := wc.Send(context.Background(), testMsg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	_, got, err := peer.ReadMessage()
	if err != nil {
		t.Fatalf("peer read failed: %v", err)
	}
	if string(got) != string(testMsg) {
		t.Errorf("peer received %q, want %q", got, testMsg)
	}
}

func TestWSConn_SendBufferFull(t *testing.T) {
	opts := DefaultOptions()
	opts.SendBufferSize = 1

	// Pumps never started, so the first send sits in the buffer.
	wc, _ := newTestConn(t, opts)

	if err := wc.Send(context.Background(), []byte("one")); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
	if err := wc.Send(context.Background(), []byte("two")); !errors.Is(err, ErrSendBufferFull) {
		t.Errorf("second Send error = %v, want ErrSendBufferFull", err)
	}
}

func TestWSConn_SendAfterClose(t *testing.T) {
	wc, _ := newTestConn(t, DefaultOptions())
	wc.Run()

	if err := wc.Close("bye"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := wc.Send(context.Background(), []byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send error = %v, want ErrClosed", err)
	}
	if err := wc.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping error = %v, want ErrClosed", err)
	}
}

func TestWSConn_DoubleClose(t *testing.T) {
	wc, _ := newTestConn(t, DefaultOptions())
	wc.Run()

	if err := wc.Close("first"); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := wc.Close("second"); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestWSConn_CloseFrameReason(t *testing.T) {
	wc, peer := newTestConn(t, DefaultOptions())
	wc.Run()

	if err := wc.Close("draining"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, _, err := peer.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("peer read error = %v, want close error", err)
	}
	if closeErr.Code != websocket.CloseNormalClosure {
		t.Errorf("close code = %d, want %d", closeErr.Code, websocket.CloseNormalClosure)
	}
	if closeErr.Text != "draining" {
		t.Errorf("close reason = %q, want %q", closeErr.Text, "draining")
	}
}

func TestWSConn_OnMessage(t *testing.T) {
	wc, peer := newTestConn(t, DefaultOptions())

	var mu sync.Mutex
	var received []string
	wc.OnMessage = func(data []byte) {
		mu.Lock()
		received = append(received, string(data))
		mu.Unlock()
	}
	wc.Run()

	for _, msg := range []string{"one", "two", "three"} {
		if err := peer.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("peer write failed: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for messages, received %d of 3", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"one", "two", "three"} {
		if received[i] != want {
			t.Errorf("message %d: got %q, want %q", i, received[i], want)
		}
	}
}

func TestWSConn_OnCloseFiresOnce(t *testing.T) {
	wc, peer := newTestConn(t, DefaultOptions())

	var closes atomic.Int32
	wc.OnClose = func(err error) {
		closes.Add(1)
	}
	wc.Run()

	peer.Close()

	time.Sleep(100 * time.Millisecond)
	if got := closes.Load(); got != 1 {
		t.Fatalf("OnClose fired %d times, want 1", got)
	}

	// A later local close must not fire the callback again.
	wc.Close("redundant")
	time.Sleep(50 * time.Millisecond)
	if got := closes.Load(); got != 1 {
		t.Errorf("OnClose fired %d times after Close, want 1", got)
	}
}

func TestWSConn_Ping(t *testing.T) {
	wc, peer := newTestConn(t, DefaultOptions())
	wc.Run()

	// The peer must be reading for its pong handler to run.
	go func() {
		for {
			if _, _, err := peer.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := wc.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestWSConn_PingTimeout(t *testing.T) {
	// Peer never reads, so no pong ever arrives.
	wc, _ := newTestConn(t, DefaultOptions())
	wc.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := wc.Ping(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Ping error = %v, want context.DeadlineExceeded", err)
	}
}

func TestWSConn_ReadLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.ReadLimit = 16

	wc, peer := newTestConn(t, opts)

	closed := make(chan error, 1)
	wc.OnClose = func(err error) {
		closed <- err
	}
	wc.Run()

	big := strings.Repeat("x", 64)
	if err := peer.WriteMessage(websocket.TextMessage, []byte(big)); err != nil {
		t.Fatalf("peer write failed: %v", err)
	}

	select {
	case err := <-closed:
		if err == nil {
			t.Error("expected a read error for an oversized frame")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for oversized frame to close the connection")
	}
}
