package realtime

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub manages active WebSocket connections keyed by user id, plus group
// membership, and implements Fanout over them. Writes hold no lock across
// I/O other than the hub read lock; failed connections are closed and left
// for cleanup on unregister.
type Hub struct {
	mu      sync.RWMutex
	conns   map[int64]map[*websocket.Conn]struct{}
	writeMu map[*websocket.Conn]*sync.Mutex
	groups  map[string]map[int64]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns:   make(map[int64]map[*websocket.Conn]struct{}),
		writeMu: make(map[*websocket.Conn]*sync.Mutex),
		groups:  make(map[string]map[int64]struct{}),
	}
}

var _ Fanout = (*Hub)(nil)

// Register adds a connection for the given user.
func (h *Hub) Register(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[userID][conn] = struct{}{}
	h.writeMu[conn] = &sync.Mutex{}
}

// Unregister removes a connection for the given user.
func (h *Hub) Unregister(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.conns[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, userID)
		}
	}
	delete(h.writeMu, conn)
}

// Join subscribes a user to a group.
func (h *Hub) Join(group string, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groups[group] == nil {
		h.groups[group] = make(map[int64]struct{})
	}
	h.groups[group][userID] = struct{}{}
}

// Leave removes a user from a group.
func (h *Hub) Leave(group string, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.groups[group]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// PushToGroup sends the event to all connections of the group's members.
func (h *Hub) PushToGroup(ctx context.Context, group string, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for uid := range h.groups[group] {
		h.writeToUserLocked(uid, ev)
	}
	return nil
}

// PushToUser sends the event to all active connections of one user.
func (h *Hub) PushToUser(ctx context.Context, userID int64, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.writeToUserLocked(userID, ev)
	return nil
}

func (h *Hub) writeToUserLocked(userID int64, ev Event) {
	for conn := range h.conns[userID] {
		wm := h.writeMu[conn]
		if wm == nil {
			continue
		}
		wm.Lock()
		err := conn.WriteJSON(ev)
		wm.Unlock()
		if err != nil {
			conn.Close()
			// stale conn is removed when its reader unregisters
		}
	}
}
