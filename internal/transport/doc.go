// Package transport adapts server-side WebSocket connections to the pool's
// Transport interface:
//   - One writer goroutine per connection owns all data frames (gorilla's
//     single-writer rule); sends enqueue onto a bounded buffer and fail fast
//     when it is full.
//   - The read loop delivers inbound frames to an OnMessage callback and
//     fires OnClose exactly once on teardown.
//   - Ping sends a ping control frame and waits for a pong from the peer.
package transport
