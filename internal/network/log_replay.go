package network

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MRamiBalles/KeepSolving/internal/events"
	"github.com/MRamiBalles/KeepSolving/internal/platform/logger"
)

// LogReplayHandler serves the round's event log over HTTP.
type LogReplayHandler struct {
	eventLog *events.Log
	roundID  string
	logger   *logger.Logger
}

// NewLogReplayHandler creates a replay handler for one round's log.
func NewLogReplayHandler(el *events.Log, roundID string, log *logger.Logger) *LogReplayHandler {
	return &LogReplayHandler{
		eventLog: el,
		roundID:  roundID,
		logger:   log,
	}
}

// ReplayEvent is one log entry as the API shows it.
type ReplayEvent struct {
	Seq       uint64 `json:"seq"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	ActorID   string `json:"actor_id"`
	Message   string `json:"message"`
	Line      string `json:"line"`
}

// ReplayResponse is the API response for a log replay.
type ReplayResponse struct {
	RoundID     string        `json:"round_id"`
	Retained    int           `json:"retained"`
	TotalEvents int           `json:"total_events"`
	FilteredBy  string        `json:"filtered_by,omitempty"`
	GeneratedAt string        `json:"generated_at"`
	Events      []ReplayEvent `json:"events"`
}

// HandleReplay returns retained log entries, oldest first.
// GET /api/log?since=N&type=DEFUSED&limit=N
func (lh *LogReplayHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		lh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	var since uint64
	if s := q.Get("since"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			lh.jsonError(w, "Invalid since", http.StatusBadRequest)
			return
		}
		since = v
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			lh.jsonError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = v
	}
	eventType := q.Get("type")

	all := lh.eventLog.Snapshot()
	replay := make([]ReplayEvent, 0, len(all))
	for _, e := range all {
		if e.Seq <= since {
			continue
		}
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		replay = append(replay, toReplayEvent(e))
	}
	if limit > 0 && len(replay) > limit {
		replay = replay[len(replay)-limit:]
	}

	filter := ""
	if eventType != "" {
		filter = "type " + eventType
	}

	lh.writeJSON(w, ReplayResponse{
		RoundID:     lh.roundID,
		Retained:    len(all),
		TotalEvents: len(replay),
		FilteredBy:  filter,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      replay,
	})
}

// HandleEventDetail returns a single retained event.
// GET /api/log/event?id=XXX
func (lh *LogReplayHandler) HandleEventDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		lh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		lh.jsonError(w, "Missing id", http.StatusBadRequest)
		return
	}

	for _, e := range lh.eventLog.Snapshot() {
		if e.ID == id {
			lh.writeJSON(w, toReplayEvent(e))
			return
		}
	}
	lh.jsonError(w, "Event not found", http.StatusNotFound)
}

// HandleStats returns per-type counts over the retained window.
// GET /api/log/stats
func (lh *LogReplayHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		lh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all := lh.eventLog.Snapshot()
	byType := make(map[string]int)
	for _, e := range all {
		byType[string(e.Type)]++
	}

	lh.writeJSON(w, map[string]interface{}{
		"round_id":        lh.roundID,
		"generated_at":    time.Now().Format(time.RFC3339),
		"retained":        len(all),
		"capacity":        lh.eventLog.Capacity(),
		"persist_dropped": lh.eventLog.PersistDropped(),
		"persist_failed":  lh.eventLog.PersistFailed(),
		"by_type":         byType,
	})
}

// RegisterRoutes sets up the log API routes.
func (lh *LogReplayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/log", lh.HandleReplay)
	mux.HandleFunc("/api/log/event", lh.HandleEventDetail)
	mux.HandleFunc("/api/log/stats", lh.HandleStats)
}

func toReplayEvent(e events.GameEvent) ReplayEvent {
	return ReplayEvent{
		Seq:       e.Seq,
		ID:        e.ID,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		Type:      string(e.Type),
		ActorID:   e.ActorID,
		Message:   e.Message,
		Line:      e.String(),
	}
}

func (lh *LogReplayHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lh.logger.Warn("failed to write response: " + err.Error())
	}
}

func (lh *LogReplayHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
