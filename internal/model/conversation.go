// Package model defines data structures for the support platform.
package model

import (
	"time"
)

// ConversationStatus represents where a conversation sits in its lifecycle.
type ConversationStatus string

const (
	StatusBot        ConversationStatus = "bot"
	StatusWaiting    ConversationStatus = "waiting"
	StatusHuman      ConversationStatus = "human"
	StatusIncomplete ConversationStatus = "incomplete"
	StatusClosed     ConversationStatus = "closed"
)

// AssignmentState tracks the agent hand-off negotiation independent of the
// conversation status.
type AssignmentState string

const (
	AssignmentUnassigned AssignmentState = "unassigned"
	AssignmentRequested  AssignmentState = "requested"
	AssignmentForced     AssignmentState = "forced"
	AssignmentAccepted   AssignmentState = "accepted"
	AssignmentDeclined   AssignmentState = "declined"
)

// Priority is the triage priority of a conversation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Conversation is one ongoing support thread with exactly one client contact.
// Timeline fields feed the SLA metrics; they are stamped from a single shared
// clock read per operation.
type Conversation struct {
	ID        int64              `json:"id"`
	ContactID int64              `json:"contact_id"`
	Status    ConversationStatus `json:"status"`
	Priority  Priority           `json:"priority"`

	AssignedAgentID  *int64          `json:"assigned_agent_id,omitempty"`
	AssignedByUserID *int64          `json:"assigned_by_user_id,omitempty"`
	AssignmentState  AssignmentState `json:"assignment_state"`

	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	FirstResponseAt     *time.Time `json:"first_response_at,omitempty"`
	AgentRequestAt      *time.Time `json:"agent_request_at,omitempty"`
	AssignedAt          *time.Time `json:"assigned_at,omitempty"`
	AgentFirstMessageAt *time.Time `json:"agent_first_message_at,omitempty"`
	AgentLastMessageAt  *time.Time `json:"agent_last_message_at,omitempty"`
	ClientLastMessageAt *time.Time `json:"client_last_message_at,omitempty"`
	WarningSentAt       *time.Time `json:"warning_sent_at,omitempty"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`

	// AverageAgentResponseSeconds is overwritten with the latest sample on
	// each qualifying agent message, not accumulated into a running mean.
	AverageAgentResponseSeconds *float64 `json:"average_agent_response_seconds,omitempty"`

	// Version is the optimistic-concurrency token; repositories reject an
	// update whose version does not match the stored row.
	Version int64 `json:"version"`
}

// IsClosed reports whether the conversation reached its terminal state.
func (c *Conversation) IsClosed() bool {
	return c.Status == StatusClosed
}

// StartConversationRequest is the request to open a conversation explicitly.
type StartConversationRequest struct {
	ContactID int64    `json:"contact_id,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Priority  Priority `json:"priority,omitempty"`
}

// AssignAgentRequest is the request to bind an agent to a conversation.
type AssignAgentRequest struct {
	AgentID int64 `json:"agent_id"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
