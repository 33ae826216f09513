package gateway

import (
	"encoding/json"
	"net/http"
)

// BroadcastRequest selects the audience for one push. Exactly one of Group,
// Owner, or All should be set.
type BroadcastRequest struct {
	Group   string          `json:"group,omitempty"`
	Owner   string          `json:"owner,omitempty"`
	All     bool            `json:"all,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// handleHealthz reports whether the pool would admit another connection.
// Load balancers use the status code to steer traffic away before clients
// hit a refusal.
func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	stats := g.pool.Snapshot()
	accepting := g.pool.CanAcceptMore()

	status := "ok"
	if !accepting {
		status = "full"
	}

	w.Header().Set("Content-Type", "application/json")
	if !accepting {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status":      status,
		"state":       stats.State,
		"connections": stats.TotalConnections,
	})
}

// handleStatsz serves the full pool snapshot.
func (g *Gateway) handleStatsz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(g.pool.Snapshot())
}

// handleBroadcast pushes a payload to the selected audience and reports the
// delivery count.
func (g *Gateway) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Payload) == 0 {
		http.Error(w, "payload is required", http.StatusBadRequest)
		return
	}

	var delivered int
	switch {
	case req.Group != "":
		delivered = g.pool.BroadcastGroup(r.Context(), req.Group, req.Payload)
	case req.Owner != "":
		delivered = g.pool.BroadcastOwner(r.Context(), req.Owner, req.Payload)
	case req.All:
		delivered = g.pool.BroadcastAll(r.Context(), req.Payload)
	default:
		http.Error(w, "one of group, owner, or all is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"delivered": delivered})
}
