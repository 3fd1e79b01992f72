package handler

import (
	"net/http"
	"time"

	"github.com/halodesk/support-platform/internal/chat"
	"github.com/halodesk/support-platform/internal/middleware"
)

// PresenceHandler handles agent presence endpoints.
type PresenceHandler struct {
	tracker *chat.PresenceTracker
}

// NewPresenceHandler creates a new presence handler.
func NewPresenceHandler(tracker *chat.PresenceTracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

// Heartbeat handles POST /api/v1/presence/heartbeat
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	h.tracker.MarkOnline(middleware.GetUserID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "online"})
}

// Offline handles POST /api/v1/presence/offline
func (h *PresenceHandler) Offline(w http.ResponseWriter, r *http.Request) {
	h.tracker.MarkOffline(middleware.GetUserID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "offline"})
}

// Online handles GET /api/v1/presence/online
func (h *PresenceHandler) Online(w http.ResponseWriter, r *http.Request) {
	ids := h.tracker.Online()
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online": ids,
		"as_of":  time.Now().UTC(),
	})
}
