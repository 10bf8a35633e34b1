package scheduler

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests. Timers fire only from
// Advance or Step, on the caller's goroutine.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *FakeClock
	when  time.Time
	f     func()
	done  bool
}

// NewFakeClock creates a FakeClock set to start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to fire once the fake time reaches now+d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Next returns the earliest pending timer deadline.
func (c *FakeClock) Next() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var next time.Time
	found := false
	for _, t := range c.timers {
		if t.done {
			continue
		}
		if !found || t.when.Before(next) {
			next = t.when
			found = true
		}
	}
	return next, found
}

// Advance moves the clock forward by d, firing due timers in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due *fakeTimer
		for _, t := range c.timers {
			if t.done || t.when.After(target) {
				continue
			}
			if due == nil || t.when.Before(due.when) {
				due = t
			}
		}
		if due == nil {
			c.now = target
			c.compact()
			c.mu.Unlock()
			return
		}
		due.done = true
		if due.when.After(c.now) {
			c.now = due.when
		}
		c.mu.Unlock()
		due.f()
	}
}

// Step advances the clock by d and runs s's tasks at every instant a timer
// fires, so alarms re-armed by those tasks are honoured within the same step.
func (c *FakeClock) Step(s *Scheduler, d time.Duration) {
	target := c.Now().Add(d)
	s.RunPending()
	for {
		next, ok := c.Next()
		if !ok || next.After(target) {
			break
		}
		c.Advance(next.Sub(c.Now()))
		s.RunPending()
	}
	c.Advance(target.Sub(c.Now()))
	s.RunPending()
}

// compact drops finished timers. Caller holds c.mu.
func (c *FakeClock) compact() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(c.timers); i++ {
		c.timers[i] = nil
	}
	c.timers = live
}
