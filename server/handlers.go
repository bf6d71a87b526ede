package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/onnwee/stream-tender/monitor"
)

// SnapshotFunc supplies the current per-channel monitor state.
type SnapshotFunc func() []monitor.Snapshot

// Handlers holds dependencies for all HTTP handlers. db may be nil when the
// service runs without capture history.
type Handlers struct {
	db        *sql.DB
	snapshots SnapshotFunc
	started   time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(db *sql.DB, snapshots SnapshotFunc) *Handlers {
	return &Handlers{db: db, snapshots: snapshots, started: time.Now()}
}

// HandleStatus reports uptime and the lifecycle phase of every monitored
// channel.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	}
	var snaps []monitor.Snapshot
	if h.snapshots != nil {
		snaps = h.snapshots()
	}
	capturing := 0
	for _, s := range snaps {
		if s.Phase == monitor.PhaseCapturing {
			capturing++
		}
	}
	resp["channels"] = snaps
	resp["capturing"] = capturing
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
