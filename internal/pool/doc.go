// Package pool implements the connection pool manager.
//
// The pool:
//   - Admits new connections under capacity and memory-pressure limits
//   - Tracks per-connection activity, health state, and message counters
//   - Indexes connections by group and by owner for targeted broadcast
//   - Sweeps for stale connections and probes them for liveness
//   - Reaps connections confirmed dead past a grace window
//   - Drains every live connection on shutdown, with a bounded timeout
//
// The pool is transport-agnostic: it manages bookkeeping around any
// handle that implements the Transport interface.
package pool
