// Package clock provides the time source injected into services. Production
// code uses Real(); tests use Fake() and move time explicitly.
package clock

import (
	"sync"
	"time"
)

type RealClock struct{}

func Real() RealClock { return RealClock{} }

func (RealClock) Now() time.Time { return time.Now() }

// FakeClock stands still until Advance or Set is called. Safe for concurrent
// use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}
