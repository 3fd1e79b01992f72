package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halodesk/support-platform/internal/chat"
	"github.com/halodesk/support-platform/internal/middleware"
	"github.com/halodesk/support-platform/pkg/logger"
)

// MessageHandler handles message receipt endpoints.
type MessageHandler struct {
	dispatcher *chat.Dispatcher
	logger     *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(d *chat.Dispatcher, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		dispatcher: d,
		logger:     log,
	}
}

// MarkDelivered handles POST /api/v1/messages/{id}/delivered
func (h *MessageHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.dispatcher.MarkDelivered(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// MarkRead handles POST /api/v1/messages/{id}/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.dispatcher.MarkRead(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
