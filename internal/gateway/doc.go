// Package gateway exposes the pool's HTTP surface:
//   - GET  /ws            authenticated WebSocket upgrade into the pool
//   - GET  /healthz       load-balancer admission signal
//   - GET  /statsz        point-in-time pool statistics
//   - POST /v1/broadcast  push to a group, an owner, or every connection
package gateway
