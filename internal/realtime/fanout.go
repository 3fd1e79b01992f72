// Package realtime provides push delivery of conversation events to live
// agent and admin sessions. Fanout is a narrow contract so the transport
// (websockets, NATS, both) stays swappable without touching the dispatcher.
package realtime

import (
	"context"
	"strconv"
)

// Event types pushed to subscribers.
const (
	EventMessageCreated       = "message.created"
	EventMessageStatusChanged = "message.status_changed"
	EventConversationUpdated  = "conversation.updated"
	EventNotificationCreated  = "notification.created"
)

// Event is one push payload.
type Event struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	Payload        any    `json:"payload,omitempty"`
}

// Fanout pushes events to subscriber groups and individual users. Push
// failures are best-effort; callers log and continue.
type Fanout interface {
	PushToGroup(ctx context.Context, group string, ev Event) error
	PushToUser(ctx context.Context, userID int64, ev Event) error
}

// ConversationGroup names the live subscriber group of one conversation.
func ConversationGroup(conversationID int64) string {
	return "conv." + strconv.FormatInt(conversationID, 10)
}

// AdminGroup is the broadcast group every admin session joins.
const AdminGroup = "role.admin"

// Nop is a Fanout that drops everything; used when no transport is configured.
type Nop struct{}

func (Nop) PushToGroup(ctx context.Context, group string, ev Event) error { return nil }
func (Nop) PushToUser(ctx context.Context, userID int64, ev Event) error  { return nil }

// Tee duplicates pushes across several transports.
type Tee []Fanout

func (t Tee) PushToGroup(ctx context.Context, group string, ev Event) error {
	var firstErr error
	for _, f := range t {
		if err := f.PushToGroup(ctx, group, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t Tee) PushToUser(ctx context.Context, userID int64, ev Event) error {
	var firstErr error
	for _, f := range t {
		if err := f.PushToUser(ctx, userID, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
