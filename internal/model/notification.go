package model

import (
	"time"
)

// NotificationType identifies the notification payload kind.
type NotificationType string

const (
	NotificationConversationClosed NotificationType = "conversation_closed"
	NotificationAgentRequested     NotificationType = "agent_requested"
	NotificationAgentAssigned      NotificationType = "agent_assigned"
	NotificationInactivityWarning  NotificationType = "inactivity_warning"
	NotificationDeliveryFailure    NotificationType = "delivery_failure"
)

// Notification is a typed payload fanned out to N recipients. Read state is
// tracked per recipient, not on the notification itself.
type Notification struct {
	ID             string           `json:"id"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Body           string           `json:"body,omitempty"`
	ConversationID *int64           `json:"conversation_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NotificationRecipient tracks one recipient's read state for a notification.
type NotificationRecipient struct {
	NotificationID string     `json:"notification_id"`
	UserID         int64      `json:"user_id"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// UserNotification is a notification joined with the caller's read state.
type UserNotification struct {
	Notification
	ReadAt *time.Time `json:"read_at,omitempty"`
}
