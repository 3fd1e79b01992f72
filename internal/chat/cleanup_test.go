package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halodesk/support-platform/internal/chat"
	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/realtime"
	"github.com/halodesk/support-platform/pkg/logger"
)

func newCleanup(f *fixture, maxAge time.Duration) *chat.CleanupScheduler {
	return chat.NewCleanupScheduler(f.store, f.sm, f.notifier, f.clock, time.Hour, maxAge, time.Hour, logger.Nop())
}

func TestCleanupRunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("ClosesStaleConversations", func(t *testing.T) {
		f := newFixture(nil)
		stale := f.seedConversation(model.StatusWaiting)

		f.clock.Advance(25 * time.Hour)
		fresh := f.seedConversation(model.StatusWaiting)

		closed, err := newCleanup(f, 24*time.Hour).RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, closed)

		got, err := f.store.Conversations.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusClosed, got.Status)

		got, err = f.store.Conversations.GetByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusWaiting, got.Status)
	})

	t.Run("SkipsAlreadyClosed", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		_, _, err := f.sm.Close(ctx, conv.ID)
		require.NoError(t, err)

		f.clock.Advance(25 * time.Hour)
		closed, err := newCleanup(f, 24*time.Hour).RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, closed)
	})

	t.Run("NotifiesAssignedAgent", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusWaiting)
		_, err := f.sm.AssignAgent(ctx, conv.ID, 7, 9, model.RoleAdmin)
		require.NoError(t, err)
		before := countNotifications(f, 7)

		f.clock.Advance(25 * time.Hour)
		closed, err := newCleanup(f, 24*time.Hour).RunOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, closed)
		assert.Equal(t, before+1, countNotifications(f, 7))
	})

	t.Run("WarnsBeforeClosing", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusWaiting)
		before := countNotifications(f, 9)

		f.clock.Advance(23*time.Hour + 30*time.Minute)
		closed, err := newCleanup(f, 24*time.Hour).RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, closed)

		got, err := f.store.Conversations.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusWaiting, got.Status)
		require.NotNil(t, got.WarningSentAt)
		assert.Equal(t, before+1, countNotifications(f, 9))
	})

	t.Run("WarnsOnlyOnce", func(t *testing.T) {
		f := newFixture(nil)
		f.seedConversation(model.StatusWaiting)
		before := countNotifications(f, 9)

		f.clock.Advance(23*time.Hour + 30*time.Minute)
		cleanup := newCleanup(f, 24*time.Hour)
		_, err := cleanup.RunOnce(ctx)
		require.NoError(t, err)
		_, err = cleanup.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, before+1, countNotifications(f, 9))
	})

	t.Run("NotifiesAdminsWhenUnassigned", func(t *testing.T) {
		f := newFixture(nil)
		f.seedConversation(model.StatusWaiting)
		before := countNotifications(f, 9)

		f.clock.Advance(25 * time.Hour)
		closed, err := newCleanup(f, 24*time.Hour).RunOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, closed)
		assert.Equal(t, before+1, countNotifications(f, 9))
	})
}

func TestCleanupRunStopsOnCancel(t *testing.T) {
	f := newFixture(nil)
	scheduler := chat.NewCleanupScheduler(f.store, f.sm, f.notifier, f.clock, 10*time.Millisecond, 24*time.Hour, time.Hour, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func countNotifications(f *fixture, userID int64) int {
	n := 0
	for _, ev := range f.fanout.userEvents(userID) {
		if ev.Type == realtime.EventNotificationCreated {
			n++
		}
	}
	return n
}
