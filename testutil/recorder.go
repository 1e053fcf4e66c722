package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/simpleiot/assettracker/bus"
	"github.com/simpleiot/assettracker/event"
)

// Recorder keeps every event published on a bus
type Recorder struct {
	lock   sync.Mutex
	events []event.Event
	notify chan struct{}
}

// NewRecorder subscribes a recorder as final subscriber to all sources
func NewRecorder(b *bus.Bus) *Recorder {
	r := &Recorder{notify: make(chan struct{}, 1)}
	b.Subscribe("recorder", bus.Final, func(_ bus.Publisher, ev event.Event) {
		r.lock.Lock()
		r.events = append(r.events, ev)
		r.lock.Unlock()
		select {
		case r.notify <- struct{}{}:
		default:
		}
	}, event.Sources...)
	return r
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []event.Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]event.Event{}, r.events...)
}

// Names returns "<source>.<kind>" for every recorded event
func (r *Recorder) Names() []string {
	var ret []string
	for _, ev := range r.Events() {
		ret = append(ret, event.Name(ev))
	}
	return ret
}

// Reset drops recorded events
func (r *Recorder) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = nil
}

// Find returns all recorded events of type T
func Find[T event.Event](r *Recorder) []T {
	var ret []T
	for _, ev := range r.Events() {
		if e, ok := ev.(T); ok {
			ret = append(ret, e)
		}
	}
	return ret
}

// Count returns the number of recorded events of type T
func Count[T event.Event](r *Recorder) int {
	return len(Find[T](r))
}

// WaitFor blocks until at least count events of type T were recorded and
// fails the test after timeout.
func WaitFor[T event.Event](t *testing.T, r *Recorder, count int, timeout time.Duration) []T {
	t.Helper()
	deadline := time.After(timeout)
	for {
		found := Find[T](r)
		if len(found) >= count {
			return found
		}
		select {
		case <-r.notify:
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			var zero T
			t.Fatalf("timeout waiting for %v x %T, got: %v", count, zero, r.Names())
			return nil
		}
	}
}
