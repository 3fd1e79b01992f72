package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/halodesk/support-platform/internal/chat"
	"github.com/halodesk/support-platform/internal/middleware"
	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/store"
	"github.com/halodesk/support-platform/internal/whatsapp"
	"github.com/halodesk/support-platform/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	store      *store.Store
	dispatcher *chat.Dispatcher
	sm         *chat.StateMachine
	logger     *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(st *store.Store, d *chat.Dispatcher, sm *chat.StateMachine, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:      st,
		dispatcher: d,
		sm:         sm,
		logger:     log,
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.dispatcher.StartConversation(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.ConversationFilter{Limit: 20}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = model.ConversationStatus(s)
	}
	if a := r.URL.Query().Get("agent_id"); a != "" {
		if id, err := middleware.ParseID(a); err == nil {
			filter.AgentID = &id
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			filter.Limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}

	convs, err := h.store.Conversations.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list conversations")
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	resp := model.ListConversationsResponse{
		Conversations: make([]model.Conversation, 0, len(convs)),
		Total:         len(convs),
	}
	for _, c := range convs {
		resp.Conversations = append(resp.Conversations, *c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.store.Conversations.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// RequestAgent handles POST /api/v1/conversations/{id}/request-agent
func (h *ConversationHandler) RequestAgent(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.sm.RequestHuman(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Assign handles POST /api/v1/conversations/{id}/assign
func (h *ConversationHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.AssignAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID <= 0 {
		writeError(w, http.StatusBadRequest, "agent_id must be positive")
		return
	}

	ctx := r.Context()
	conv, err := h.sm.AssignAgent(ctx, id, req.AgentID, middleware.GetUserID(ctx), middleware.GetRole(ctx))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Close handles POST /api/v1/conversations/{id}/close
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, _, err := h.sm.Close(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// MarkIncomplete handles POST /api/v1/conversations/{id}/incomplete
func (h *ConversationHandler) MarkIncomplete(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.sm.MarkIncomplete(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ListMessages handles GET /api/v1/conversations/{id}/messages
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	msgs, err := h.store.Messages.ListByConversation(r.Context(), id, limit)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := model.ListMessagesResponse{
		Messages: make([]model.Message, 0, len(msgs)),
		Total:    len(msgs),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, *m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SendMessage handles POST /api/v1/conversations/{id}/messages
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageBody(req.Body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var options []whatsapp.ListOption
	for _, o := range req.ListOptions {
		options = append(options, whatsapp.ListOption{ID: o.ID, Title: o.Title})
	}

	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	result, err := h.dispatcher.SendMessage(ctx, chat.SendRequest{
		ConversationID: id,
		SenderUserID:   &userID,
		SenderRole:     middleware.GetRole(ctx),
		Body:           req.Body,
		Attachment:     req.Attachment,
		ListOptions:    options,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
