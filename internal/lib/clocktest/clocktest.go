// Package clocktest wraps clockwork's fake clock so that AfterFunc callbacks
// run on the goroutine calling Advance, in deadline order, before it returns.
package clocktest

import (
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type Fake struct {
	*clockwork.FakeClock

	mu     sync.Mutex
	seq    int
	timers []*timer
}

func New(start time.Time) *Fake {
	return &Fake{FakeClock: clockwork.NewFakeClockAt(start)}
}

type timer struct {
	clockwork.Timer

	fake  *Fake
	fn    func()
	at    time.Time
	seq   int
	armed bool
}

func (c *Fake) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &timer{
		Timer: c.FakeClock.NewTimer(d),
		fake:  c,
		fn:    f,
		at:    c.FakeClock.Now().Add(d),
		seq:   c.seq,
		armed: true,
	}
	c.timers = append(c.timers, t)
	return t
}

func (t *timer) Stop() bool {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()

	t.Timer.Stop()
	was := t.armed
	t.armed = false
	return was
}

func (t *timer) Reset(d time.Duration) bool {
	c := t.fake
	c.mu.Lock()
	defer c.mu.Unlock()

	t.Timer.Reset(d)
	was := t.armed
	c.seq++
	t.at, t.seq, t.armed = c.FakeClock.Now().Add(d), c.seq, true
	if !slices.Contains(c.timers, t) {
		c.timers = append(c.timers, t)
	}
	return was
}

// Advance moves the clock forward by d and runs every callback that falls
// due, including ones armed by callbacks within the window.
func (c *Fake) Advance(d time.Duration) {
	target := c.FakeClock.Now().Add(d)

	for {
		c.mu.Lock()
		t := c.nextLocked(target)
		if t != nil {
			t.armed = false
		}
		c.mu.Unlock()

		if t == nil {
			break
		}
		if wait := t.at.Sub(c.FakeClock.Now()); wait > 0 {
			c.FakeClock.Advance(wait)
		}
		t.fn()
	}

	if rest := target.Sub(c.FakeClock.Now()); rest > 0 {
		c.FakeClock.Advance(rest)
	}
}

// Pending returns the number of armed callbacks.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if t.armed {
			n++
		}
	}
	return n
}

func (c *Fake) nextLocked(target time.Time) *timer {
	c.timers = slices.DeleteFunc(c.timers, func(t *timer) bool { return !t.armed })

	var next *timer
	for _, t := range c.timers {
		if t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}
