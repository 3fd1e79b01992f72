// Package chat implements the conversation and message lifecycle engine: the
// state machine, the message dispatcher, presence, notifications, and the
// cleanup scheduler.
package chat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/halodesk/support-platform/internal/clock"
	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/realtime"
	"github.com/halodesk/support-platform/internal/store"
	"github.com/halodesk/support-platform/pkg/logger"
	"github.com/halodesk/support-platform/pkg/metrics"
)

// StateMachine owns the valid conversation transitions and assignment rules.
// Timeline mutations driven by message traffic live in the Dispatcher; the
// state machine covers the explicit lifecycle operations.
type StateMachine struct {
	convs    store.ConversationRepository
	fanout   realtime.Fanout
	notifier *Notifier
	clock    clock.Clock
	logger   *logger.Logger
}

// NewStateMachine creates the conversation state machine.
func NewStateMachine(
	convs store.ConversationRepository,
	fanout realtime.Fanout,
	notifier *Notifier,
	clk clock.Clock,
	log *logger.Logger,
) *StateMachine {
	return &StateMachine{
		convs:    convs,
		fanout:   fanout,
		notifier: notifier,
		clock:    clk,
		logger:   log,
	}
}

// apply runs a read-mutate-write cycle on the conversation aggregate under
// its optimistic-concurrency token. A lost update is retried exactly once
// with a fresh read; the critical section is short enough that a second
// conflict indicates something pathological and is surfaced. The mutate
// callback reports whether it changed anything; unchanged aggregates skip
// the write entirely, which is what makes the no-op operations cheap.
func (sm *StateMachine) apply(
	ctx context.Context,
	id int64,
	mutate func(c *model.Conversation) (bool, error),
) (*model.Conversation, bool, error) {
	if id <= 0 {
		return nil, false, fmt.Errorf("%w: conversation id must be positive", model.ErrValidation)
	}

	for attempt := 0; ; attempt++ {
		conv, err := sm.convs.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}

		changed, err := mutate(conv)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return conv, false, nil
		}

		err = sm.convs.Update(ctx, conv)
		if err == nil {
			return conv, true, nil
		}
		if errors.Is(err, model.ErrVersionConflict) && attempt == 0 {
			continue
		}
		return nil, false, err
	}
}

// RequestHuman moves a bot-handled conversation into the waiting queue.
// Re-invocation while already waiting is a no-op, not an error.
func (sm *StateMachine) RequestHuman(ctx context.Context, conversationID int64) (*model.Conversation, error) {
	now := sm.clock.Now()

	conv, changed, err := sm.apply(ctx, conversationID, func(c *model.Conversation) (bool, error) {
		switch c.Status {
		case model.StatusWaiting:
			return false, nil
		case model.StatusBot:
		default:
			return false, fmt.Errorf("%w: cannot request human from status %q", model.ErrInvalidState, c.Status)
		}
		c.Status = model.StatusWaiting
		if c.AgentRequestAt == nil {
			t := now
			c.AgentRequestAt = &t
		}
		c.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		metrics.RecordTransition(string(model.StatusWaiting))
		sm.pushConversationUpdated(ctx, conv)
	}
	return conv, nil
}

// AssignAgent binds an agent to a waiting (or re-assigns a human-handled)
// conversation. An admin caller forces the assignment; an agent claiming a
// conversation for themselves records a requested hand-off.
func (sm *StateMachine) AssignAgent(ctx context.Context, conversationID, agentID, assignedBy int64, byRole model.Role) (*model.Conversation, error) {
	if agentID <= 0 {
		return nil, fmt.Errorf("%w: agent id must be positive", model.ErrValidation)
	}
	now := sm.clock.Now()

	conv, _, err := sm.apply(ctx, conversationID, func(c *model.Conversation) (bool, error) {
		switch c.Status {
		case model.StatusWaiting, model.StatusHuman:
		default:
			return false, fmt.Errorf("%w: cannot assign agent from status %q", model.ErrInvalidState, c.Status)
		}
		agent := agentID
		by := assignedBy
		t := now
		c.AssignedAgentID = &agent
		c.AssignedByUserID = &by
		c.AssignedAt = &t
		c.Status = model.StatusHuman
		if byRole == model.RoleAdmin {
			c.AssignmentState = model.AssignmentForced
		} else {
			c.AssignmentState = model.AssignmentRequested
		}
		c.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(model.StatusHuman))
	sm.pushConversationUpdated(ctx, conv)

	if sm.notifier != nil && agentID != assignedBy {
		convID := conv.ID
		if _, err := sm.notifier.Notify(ctx, model.NotificationAgentAssigned,
			"Conversation assigned to you", "", &convID, []int64{agentID}); err != nil {
			sm.logger.Warn("assignment notification failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
		}
	}
	return conv, nil
}

// Close transitions the conversation to its terminal state. Closing an
// already-closed conversation is a no-op; the second return reports whether
// this call performed the close, so callers can avoid double notifications.
func (sm *StateMachine) Close(ctx context.Context, conversationID int64) (*model.Conversation, bool, error) {
	now := sm.clock.Now()

	conv, changed, err := sm.apply(ctx, conversationID, func(c *model.Conversation) (bool, error) {
		if c.IsClosed() {
			return false, nil
		}
		t := now
		c.Status = model.StatusClosed
		c.ClosedAt = &t
		c.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		metrics.RecordTransition(string(model.StatusClosed))
		sm.pushConversationUpdated(ctx, conv)
	}
	return conv, changed, nil
}

// MarkIncomplete records client abandonment of a conversation that never
// reached a human.
func (sm *StateMachine) MarkIncomplete(ctx context.Context, conversationID int64) (*model.Conversation, error) {
	now := sm.clock.Now()

	conv, changed, err := sm.apply(ctx, conversationID, func(c *model.Conversation) (bool, error) {
		switch c.Status {
		case model.StatusIncomplete:
			return false, nil
		case model.StatusBot, model.StatusWaiting:
		default:
			return false, fmt.Errorf("%w: cannot mark incomplete from status %q", model.ErrInvalidState, c.Status)
		}
		c.Status = model.StatusIncomplete
		c.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		metrics.RecordTransition(string(model.StatusIncomplete))
		sm.pushConversationUpdated(ctx, conv)
	}
	return conv, nil
}

// pushConversationUpdated fans a conversation snapshot out to its live
// subscribers, the assigned agent's sessions, and the admin broadcast group.
// Push failures never fail the operation; they are logged and dropped.
func (sm *StateMachine) pushConversationUpdated(ctx context.Context, conv *model.Conversation) {
	ev := realtime.Event{
		Type:           realtime.EventConversationUpdated,
		ConversationID: conv.ID,
		Payload:        conv,
	}
	if err := sm.fanout.PushToGroup(ctx, realtime.ConversationGroup(conv.ID), ev); err != nil {
		sm.logger.Warn("conversation fanout failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
	}
	if conv.AssignedAgentID != nil {
		if err := sm.fanout.PushToUser(ctx, *conv.AssignedAgentID, ev); err != nil {
			sm.logger.Warn("agent fanout failed", zap.Int64("agent_id", *conv.AssignedAgentID), zap.Error(err))
		}
	}
	if err := sm.fanout.PushToGroup(ctx, realtime.AdminGroup, ev); err != nil {
		sm.logger.Warn("admin fanout failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
	}
}
