package clock

import "time"

// FakeClock is a manually driven Clock for tests, pinned at a fixed
// instant until advanced. Not safe for concurrent use.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward by d. Session expiry tests use this
// instead of sleeping.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
