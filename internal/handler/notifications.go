package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/halodesk/support-platform/internal/chat"
	"github.com/halodesk/support-platform/internal/middleware"
	"github.com/halodesk/support-platform/internal/store"
	"github.com/halodesk/support-platform/pkg/logger"
)

// NotificationHandler handles in-app notification endpoints.
type NotificationHandler struct {
	store    *store.Store
	notifier *chat.Notifier
	logger   *logger.Logger
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(st *store.Store, n *chat.Notifier, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		store:    st,
		notifier: n,
		logger:   log,
	}
}

// List handles GET /api/v1/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	userID := middleware.GetUserID(r.Context())
	notifs, err := h.store.Notifications.ListForUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list notifications")
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifs,
		"total":         len(notifs),
	})
}

// MarkRead handles POST /api/v1/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.notifier.MarkRead(r.Context(), id, userID); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
