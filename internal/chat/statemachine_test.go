package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/realtime"
)

func TestRequestHuman(t *testing.T) {
	ctx := context.Background()

	t.Run("FromBot", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusBot)

		got, err := f.sm.RequestHuman(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusWaiting, got.Status)
		require.NotNil(t, got.AgentRequestAt)
		assert.Equal(t, testEpoch, *got.AgentRequestAt)
	})

	t.Run("AlreadyWaitingIsNoOp", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusBot)

		first, err := f.sm.RequestHuman(ctx, conv.ID)
		require.NoError(t, err)

		f.clock.Advance(time.Minute)
		second, err := f.sm.RequestHuman(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusWaiting, second.Status)
		assert.Equal(t, *first.AgentRequestAt, *second.AgentRequestAt, "request timestamp must not move")
	})

	t.Run("FromClosedFails", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusClosed)

		_, err := f.sm.RequestHuman(ctx, conv.ID)
		assert.ErrorIs(t, err, model.ErrInvalidState)
	})

	t.Run("UnknownConversation", func(t *testing.T) {
		f := newFixture(nil)
		_, err := f.sm.RequestHuman(ctx, 999)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestAssignAgent(t *testing.T) {
	ctx := context.Background()

	t.Run("AdminForcesAssignment", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusWaiting)

		got, err := f.sm.AssignAgent(ctx, conv.ID, 7, 9, model.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, model.StatusHuman, got.Status)
		assert.Equal(t, model.AssignmentForced, got.AssignmentState)
		require.NotNil(t, got.AssignedAgentID)
		assert.Equal(t, int64(7), *got.AssignedAgentID)
		require.NotNil(t, got.AssignedByUserID)
		assert.Equal(t, int64(9), *got.AssignedByUserID)
		require.NotNil(t, got.AssignedAt)
		assert.Equal(t, testEpoch, *got.AssignedAt)
	})

	t.Run("AgentSelfClaimIsRequested", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusWaiting)

		got, err := f.sm.AssignAgent(ctx, conv.ID, 7, 7, model.RoleAgent)
		require.NoError(t, err)
		assert.Equal(t, model.AssignmentRequested, got.AssignmentState)
		// self-claims produce no assignment notification
		for _, ev := range f.fanout.userEvents(7) {
			assert.NotEqual(t, realtime.EventNotificationCreated, ev.Type)
		}
	})

	t.Run("AssignmentNotifiesAgent", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusWaiting)

		_, err := f.sm.AssignAgent(ctx, conv.ID, 7, 9, model.RoleAdmin)
		require.NoError(t, err)

		var notified bool
		for _, ev := range f.fanout.userEvents(7) {
			if ev.Type == realtime.EventNotificationCreated {
				notified = true
			}
		}
		assert.True(t, notified, "assigned agent should receive a notification event")
	})

	t.Run("ReassignFromHuman", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusWaiting)

		_, err := f.sm.AssignAgent(ctx, conv.ID, 7, 9, model.RoleAdmin)
		require.NoError(t, err)
		got, err := f.sm.AssignAgent(ctx, conv.ID, 9, 9, model.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, int64(9), *got.AssignedAgentID)
	})

	t.Run("FromBotFails", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusBot)

		_, err := f.sm.AssignAgent(ctx, conv.ID, 7, 9, model.RoleAdmin)
		assert.ErrorIs(t, err, model.ErrInvalidState)
	})

	t.Run("InvalidAgentID", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusWaiting)

		_, err := f.sm.AssignAgent(ctx, conv.ID, 0, 9, model.RoleAdmin)
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	t.Run("ClosesAndStamps", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		got, changed, err := f.sm.Close(ctx, conv.ID)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, model.StatusClosed, got.Status)
		require.NotNil(t, got.ClosedAt)
		assert.Equal(t, testEpoch, *got.ClosedAt)
	})

	t.Run("SecondCloseIsNoOp", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		_, changed, err := f.sm.Close(ctx, conv.ID)
		require.NoError(t, err)
		require.True(t, changed)

		f.clock.Advance(time.Hour)
		got, changed, err := f.sm.Close(ctx, conv.ID)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, testEpoch, *got.ClosedAt, "close timestamp must not move")
	})
}

func TestMarkIncomplete(t *testing.T) {
	ctx := context.Background()

	t.Run("FromBot", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusBot)

		got, err := f.sm.MarkIncomplete(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusIncomplete, got.Status)
	})

	t.Run("FromHumanFails", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		_, err := f.sm.MarkIncomplete(ctx, conv.ID)
		assert.ErrorIs(t, err, model.ErrInvalidState)
	})
}
