// Package bot implements the bot stage that fronts every conversation before
// a human agent is involved. An Engine inspects a client message and decides
// whether to reply, hand off to a human, or stay silent.
package bot

import (
	"context"

	"github.com/halodesk/support-platform/internal/model"
)

// Action is the kind of decision an engine makes.
type Action string

const (
	ActionReply   Action = "reply"
	ActionHandoff Action = "handoff"
	ActionIgnore  Action = "ignore"
)

// Decision is the outcome of running the bot stage on one client message.
type Decision struct {
	Action Action
	// Reply is the outbound text when Action is ActionReply.
	Reply string
}

// Engine decides how the bot stage responds to a client message on a
// bot-handled conversation. Implementations must be safe for concurrent use.
// Callers degrade an engine error to a human handoff.
type Engine interface {
	Decide(ctx context.Context, conv *model.Conversation, msg *model.Message) (Decision, error)
	Name() string
}
