package module

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Timer is a one-shot or periodic timer. Starting an armed timer cancels
// the pending firing first, and a firing from an earlier arming never runs
// the callback.
type Timer struct {
	clock clock.Clock
	fn    func()

	lock   sync.Mutex
	t      *clock.Timer
	gen    uint64
	armed  bool
	period time.Duration
	// expiry of a one-shot arming
	deadline time.Time
}

// NewTimer creates a stopped timer that calls fn on its own goroutine when
// it fires. A nil clock uses the wall clock.
func NewTimer(c clock.Clock, fn func()) *Timer {
	if c == nil {
		c = clock.New()
	}
	return &Timer{clock: c, fn: fn}
}

// Start arms the timer to fire after delay, then every period if period
// is not 0.
func (t *Timer) Start(delay, period time.Duration) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.t != nil {
		t.t.Stop()
	}
	t.gen++
	t.armed = true
	t.period = period
	t.deadline = t.clock.Now().Add(delay)
	gen := t.gen
	t.t = t.clock.AfterFunc(delay, func() { t.fire(gen) })
}

// Stop disarms the timer. Stopping an idle timer does nothing.
func (t *Timer) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
	t.gen++
	t.armed = false
}

// Running reports whether the timer is armed. A one-shot timer stops
// running at its deadline, even if the callback did not run yet.
func (t *Timer) Running() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.armed {
		return false
	}
	return t.period > 0 || t.clock.Now().Before(t.deadline)
}

func (t *Timer) fire(gen uint64) {
	t.lock.Lock()
	if gen != t.gen || !t.armed {
		t.lock.Unlock()
		return
	}

	if t.period > 0 {
		t.t = t.clock.AfterFunc(t.period, func() { t.fire(gen) })
	} else {
		t.armed = false
		t.t = nil
	}
	t.lock.Unlock()

	t.fn()
}
