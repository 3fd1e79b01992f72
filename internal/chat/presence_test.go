package chat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halodesk/support-platform/internal/chat"
	"github.com/halodesk/support-platform/internal/clock"
)

func TestPresenceTracker(t *testing.T) {
	t.Run("OnlineWithinWindow", func(t *testing.T) {
		clk := clock.NewFake(testEpoch)
		p := chat.NewPresenceTracker(clk, 5*time.Minute)

		p.MarkOnline(7)
		assert.True(t, p.IsOnline(7))

		clk.Advance(4 * time.Minute)
		assert.True(t, p.IsOnline(7))

		clk.Advance(2 * time.Minute)
		assert.False(t, p.IsOnline(7), "heartbeat older than the window")
	})

	t.Run("HeartbeatRefreshes", func(t *testing.T) {
		clk := clock.NewFake(testEpoch)
		p := chat.NewPresenceTracker(clk, 5*time.Minute)

		p.MarkOnline(7)
		clk.Advance(4 * time.Minute)
		p.MarkOnline(7)
		clk.Advance(4 * time.Minute)
		assert.True(t, p.IsOnline(7))
	})

	t.Run("MarkOffline", func(t *testing.T) {
		clk := clock.NewFake(testEpoch)
		p := chat.NewPresenceTracker(clk, 5*time.Minute)

		p.MarkOnline(7)
		p.MarkOffline(7)
		assert.False(t, p.IsOnline(7))
		_, ok := p.LastSeen(7)
		assert.False(t, ok)
	})

	t.Run("OnlineList", func(t *testing.T) {
		clk := clock.NewFake(testEpoch)
		p := chat.NewPresenceTracker(clk, 5*time.Minute)

		p.MarkOnline(7)
		clk.Advance(6 * time.Minute)
		p.MarkOnline(9)

		online := p.Online()
		assert.Equal(t, []int64{9}, online)
	})

	t.Run("LastSeen", func(t *testing.T) {
		clk := clock.NewFake(testEpoch)
		p := chat.NewPresenceTracker(clk, 5*time.Minute)

		p.MarkOnline(7)
		seen, ok := p.LastSeen(7)
		require.True(t, ok)
		assert.Equal(t, testEpoch, seen)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		clk := clock.NewFake(testEpoch)
		p := chat.NewPresenceTracker(clk, 5*time.Minute)
		assert.False(t, p.IsOnline(42))
	})
}
