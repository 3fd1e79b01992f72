// Package store defines the persistence contracts for the support platform.
// The conversation aggregate is the only resource under optimistic-concurrency
// discipline; messages are append-only once written.
package store

import (
	"context"
	"time"

	"github.com/halodesk/support-platform/internal/model"
)

// ConversationFilter narrows conversation listings.
type ConversationFilter struct {
	Status  model.ConversationStatus
	AgentID *int64
	Limit   int
	Offset  int
}

// ConversationRepository persists conversation aggregates. Update compares the
// aggregate's Version against the stored row and returns
// model.ErrVersionConflict on mismatch; on success the version is bumped.
type ConversationRepository interface {
	Create(ctx context.Context, c *model.Conversation) error
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
	Update(ctx context.Context, c *model.Conversation) error
	List(ctx context.Context, f ConversationFilter) ([]*model.Conversation, error)
	// FindActiveByContact returns the contact's most recent non-closed
	// conversation, or model.ErrNotFound.
	FindActiveByContact(ctx context.Context, contactID int64) (*model.Conversation, error)
	// ListOpenBefore returns all non-closed conversations created before
	// the cutoff, for the cleanup scheduler.
	ListOpenBefore(ctx context.Context, cutoff time.Time) ([]*model.Conversation, error)
}

// MessageRepository persists messages.
type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	Update(ctx context.Context, m *model.Message) error
	ListByConversation(ctx context.Context, conversationID int64, limit int) ([]*model.Message, error)
	// FindByExternalID looks a message up by provider id within one
	// conversation; it is the webhook idempotency probe.
	FindByExternalID(ctx context.Context, conversationID int64, externalID string) (*model.Message, error)
	// GetByExternalID looks a message up by provider id across all
	// conversations, for delivery/read receipts.
	GetByExternalID(ctx context.Context, externalID string) (*model.Message, error)
	// LastClientMessage returns the most recent contact-authored message of
	// the conversation, or model.ErrNotFound.
	LastClientMessage(ctx context.Context, conversationID int64) (*model.Message, error)
}

// ContactRepository persists contact identity records, phone-keyed.
type ContactRepository interface {
	Create(ctx context.Context, c *model.ContactLog) error
	GetByID(ctx context.Context, id int64) (*model.ContactLog, error)
	GetByPhone(ctx context.Context, phone string) (*model.ContactLog, error)
}

// UserRepository reads internal users. User administration is an external
// concern; the platform only resolves ids and role sets.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	ListByRole(ctx context.Context, role model.Role) ([]*model.User, error)
}

// NotificationRepository persists notifications with per-recipient read state.
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification, recipientIDs []int64) error
	ListForUser(ctx context.Context, userID int64, limit int) ([]*model.UserNotification, error)
	MarkRead(ctx context.Context, notificationID string, userID int64, at time.Time) error
}

// Store bundles the repositories one backend provides.
type Store struct {
	Conversations ConversationRepository
	Messages      MessageRepository
	Contacts      ContactRepository
	Users         UserRepository
	Notifications NotificationRepository
}
