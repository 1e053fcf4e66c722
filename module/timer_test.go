package module

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func waitFire(t *testing.T, fired chan struct{}) {
	t.Helper()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func noFire(t *testing.T, fired chan struct{}) {
	t.Helper()
	select {
	case <-fired:
		t.Fatal("timer fired unexpectedly")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTimerOneShot(t *testing.T) {
	mock := clock.NewMock()
	fired := make(chan struct{}, 10)
	tmr := NewTimer(mock, func() { fired <- struct{}{} })

	if tmr.Running() {
		t.Error("new timer is running")
	}

	// stopping an idle timer is fine
	tmr.Stop()

	tmr.Start(10*time.Second, 0)
	if !tmr.Running() {
		t.Error("started timer not running")
	}

	mock.Add(9 * time.Second)
	noFire(t, fired)

	mock.Add(time.Second)
	waitFire(t, fired)

	if tmr.Running() {
		t.Error("one shot timer still running after firing")
	}

	mock.Add(time.Minute)
	noFire(t, fired)
}

func TestTimerRearm(t *testing.T) {
	mock := clock.NewMock()
	fired := make(chan struct{}, 10)
	tmr := NewTimer(mock, func() { fired <- struct{}{} })

	tmr.Start(10*time.Second, 0)
	mock.Add(5 * time.Second)

	// re-arming cancels the first deadline
	tmr.Start(10*time.Second, 0)
	mock.Add(5 * time.Second)
	noFire(t, fired)

	mock.Add(5 * time.Second)
	waitFire(t, fired)
}

func TestTimerPeriodic(t *testing.T) {
	mock := clock.NewMock()
	fired := make(chan struct{}, 10)
	tmr := NewTimer(mock, func() { fired <- struct{}{} })

	tmr.Start(time.Minute, time.Minute)

	for i := 0; i < 3; i++ {
		mock.Add(time.Minute)
		waitFire(t, fired)
	}

	tmr.Stop()
	mock.Add(time.Minute)
	noFire(t, fired)
}
