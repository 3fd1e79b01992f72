package chat

import (
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/halodesk/support-platform/internal/clock"
)

// PresenceTracker keeps a last-seen timestamp per user. A user is online
// while their most recent heartbeat is younger than the window; entries
// expire from the cache on their own so an idle user simply ages out.
type PresenceTracker struct {
	cache  *gocache.Cache
	clock  clock.Clock
	window time.Duration
}

// NewPresenceTracker creates a tracker with the given online window.
func NewPresenceTracker(clk clock.Clock, window time.Duration) *PresenceTracker {
	return &PresenceTracker{
		cache:  gocache.New(window, 2*window),
		clock:  clk,
		window: window,
	}
}

// MarkOnline records a heartbeat for the user.
func (p *PresenceTracker) MarkOnline(userID int64) {
	p.cache.Set(presenceKey(userID), p.clock.Now(), p.window)
}

// MarkOffline removes the user immediately, ahead of expiry.
func (p *PresenceTracker) MarkOffline(userID int64) {
	p.cache.Delete(presenceKey(userID))
}

// IsOnline reports whether the user heartbeated within the window.
func (p *PresenceTracker) IsOnline(userID int64) bool {
	v, ok := p.cache.Get(presenceKey(userID))
	if !ok {
		return false
	}
	lastSeen := v.(time.Time)
	return p.clock.Now().Sub(lastSeen) < p.window
}

// LastSeen returns the user's most recent heartbeat, if still held.
func (p *PresenceTracker) LastSeen(userID int64) (time.Time, bool) {
	v, ok := p.cache.Get(presenceKey(userID))
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

// Online lists the ids of every user currently inside the window.
func (p *PresenceTracker) Online() []int64 {
	now := p.clock.Now()
	var ids []int64
	for key, item := range p.cache.Items() {
		lastSeen, ok := item.Object.(time.Time)
		if !ok || now.Sub(lastSeen) >= p.window {
			continue
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func presenceKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
