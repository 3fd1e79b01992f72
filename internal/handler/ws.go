package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/halodesk/support-platform/internal/middleware"
	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/realtime"
	"github.com/halodesk/support-platform/pkg/logger"
	"github.com/halodesk/support-platform/pkg/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens at the JWT layer; origin allowance mirrors the CORS policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClientFrame is what a connected client may send: group membership
// changes for the conversations it is viewing.
type wsClientFrame struct {
	Action         string `json:"action"` // "join" or "leave"
	ConversationID int64  `json:"conversation_id"`
}

// WSHandler upgrades authenticated clients onto the realtime hub.
type WSHandler struct {
	hub    *realtime.Hub
	logger *logger.Logger
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(hub *realtime.Hub, log *logger.Logger) *WSHandler {
	return &WSHandler{hub: hub, logger: log}
}

// Serve handles GET /api/v1/ws. Admins join the admin group on connect and
// receive every conversation update; agents join conversation groups
// explicitly via join frames.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	role := middleware.GetRole(ctx)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	h.hub.Register(userID, conn)
	metrics.WSConnectionsActive.Inc()
	if role == model.RoleAdmin {
		h.hub.Join(realtime.AdminGroup, userID)
	}

	defer func() {
		h.hub.Unregister(userID, conn)
		metrics.WSConnectionsActive.Dec()
		conn.Close()
	}()

	for {
		var frame wsClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.Int64("user_id", userID), zap.Error(err))
			}
			return
		}
		if frame.ConversationID <= 0 {
			continue
		}
		switch frame.Action {
		case "join":
			h.hub.Join(realtime.ConversationGroup(frame.ConversationID), userID)
		case "leave":
			h.hub.Leave(realtime.ConversationGroup(frame.ConversationID), userID)
		}
	}
}
