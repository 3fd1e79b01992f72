// Package clock supplies the single time source used for every timestamp the
// platform stamps. All timeline fields on a conversation are derived from one
// Now() read per operation so related fields can never disagree.
package clock

import (
	"sync"
	"time"
)

// Clock yields the current time in a fixed location.
type Clock interface {
	Now() time.Time
}

// System is a Clock backed by the wall clock, pinned to one time zone.
type System struct {
	loc *time.Location
}

// NewSystem creates a system clock in the named IANA time zone.
func NewSystem(tz string) (*System, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return &System{loc: loc}, nil
}

// Now returns the current time in the clock's zone.
func (c *System) Now() time.Time {
	return time.Now().In(c.loc)
}

// Fake is a settable clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now returns the fake's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the fake clock forward by d and returns the new time.
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}
