package supervisor_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/simpleiot/assettracker/bus"
	"github.com/simpleiot/assettracker/event"
	"github.com/simpleiot/assettracker/module"
	"github.com/simpleiot/assettracker/supervisor"
	"github.com/simpleiot/assettracker/testutil"
)

type rebooter struct {
	lock    sync.Mutex
	reasons []error
	done    chan struct{}
}

func newRebooter() *rebooter {
	return &rebooter{done: make(chan struct{}, 10)}
}

func (r *rebooter) Reboot(reason error) {
	r.lock.Lock()
	r.reasons = append(r.reasons, reason)
	r.lock.Unlock()
	r.done <- struct{}{}
}

func (r *rebooter) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.reasons)
}

func (r *rebooter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no reboot")
	}
}

func (r *rebooter) none(t *testing.T) {
	t.Helper()
	time.Sleep(20 * time.Millisecond)
	if n := r.count(); n != 0 {
		t.Fatal("unexpected reboot: ", n)
	}
}

type fixture struct {
	bus      *bus.Bus
	rec      *testutil.Recorder
	clock    *clock.Mock
	registry *module.Registry
	reboot   *rebooter
	sup      *supervisor.Supervisor
	hook     *test.Hook
}

// newFixture registers live modules like the real ones do on start
func newFixture(live ...string) *fixture {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &fixture{
		bus:      bus.New(),
		clock:    clock.NewMock(),
		registry: module.NewRegistry(nil),
		reboot:   newRebooter(),
		hook:     hook,
	}
	f.rec = testutil.NewRecorder(f.bus)

	for _, name := range live {
		f.registry.Start(name)
	}

	f.sup = supervisor.New(supervisor.Options{
		Bus:      f.bus,
		Registry: f.registry,
		Rebooter: f.reboot,
		Clock:    f.clock,
		Log:      logrus.NewEntry(logger),
	})

	return f
}

var errDriver = errors.New("driver fault")

func TestShutdownRequestOnce(t *testing.T) {
	f := newFixture("app", "data", "cloud")

	f.bus.Publish(event.Error{From: event.SourceCloud, Err: errDriver})
	f.bus.Publish(event.Error{From: event.SourceGPS, Err: errDriver})
	f.sup.Fatal(errDriver)

	reqs := testutil.Find[event.UtilShutdownRequest](f.rec)
	if len(reqs) != 1 {
		t.Fatal("expected one shutdown request, got: ", len(reqs))
	}
	if reqs[0].Reason != "cloud: driver fault" {
		t.Error("reason: ", reqs[0].Reason)
	}
	if !f.sup.Pending() {
		t.Error("reboot not pending")
	}
}

func TestQuorumReboot(t *testing.T) {
	f := newFixture("app", "data", "cloud")

	f.bus.Publish(event.Error{From: event.SourceData, Err: errDriver})

	f.bus.Publish(event.ShutdownReady{From: event.SourceApp})
	f.bus.Publish(event.ShutdownReady{From: event.SourceData})
	// a duplicate does not count toward the quorum
	f.bus.Publish(event.ShutdownReady{From: event.SourceData})

	f.clock.Add(10 * time.Second)
	f.reboot.none(t)

	f.bus.Publish(event.ShutdownReady{From: event.SourceCloud})

	f.clock.Add(4 * time.Second)
	f.reboot.none(t)

	f.clock.Add(time.Second)
	f.reboot.wait(t)

	if !errors.Is(f.reboot.reasons[0], errDriver) {
		t.Error("reason: ", f.reboot.reasons[0])
	}

	// the graceful timer was replaced by the quorum timer
	f.clock.Add(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if n := f.reboot.count(); n != 1 {
		t.Error("expected one reboot, got: ", n)
	}
}

func TestGracefulTimeout(t *testing.T) {
	f := newFixture("app", "data", "cloud")

	f.sup.Fatal(errDriver)
	f.bus.Publish(event.ShutdownReady{From: event.SourceApp})

	f.clock.Add(59 * time.Second)
	f.reboot.none(t)

	f.clock.Add(time.Second)
	f.reboot.wait(t)

	f.clock.Add(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if n := f.reboot.count(); n != 1 {
		t.Error("expected one reboot, got: ", n)
	}
}

func TestFotaDone(t *testing.T) {
	f := newFixture("app")

	f.bus.Publish(event.CloudFotaDone{Version: "1.2.0"})
	f.bus.Publish(event.ShutdownReady{From: event.SourceApp})

	f.clock.Add(5 * time.Second)
	f.reboot.wait(t)

	if !errors.Is(f.reboot.reasons[0], supervisor.ErrFotaDone) {
		t.Error("reason: ", f.reboot.reasons[0])
	}
}

func TestReadyWithoutRequest(t *testing.T) {
	f := newFixture("app")

	f.bus.Publish(event.ShutdownReady{From: event.SourceApp})
	f.clock.Add(time.Hour)
	f.reboot.none(t)

	if f.sup.Pending() {
		t.Error("reboot pending")
	}

	var warned bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	if !warned {
		t.Error("stray ready not logged")
	}
}

func TestRecover(t *testing.T) {
	f := newFixture("app")

	func() {
		defer f.sup.Recover()
		panic("boom")
	}()

	if n := testutil.Count[event.UtilShutdownRequest](f.rec); n != 1 {
		t.Fatal("panic did not request shutdown")
	}
}

// Modules answering synchronously from inside the shutdown request publish
// must not deadlock the supervisor.
func TestSynchronousAck(t *testing.T) {
	f := newFixture("ui")

	f.bus.Subscribe("ui", bus.Normal, func(p bus.Publisher, ev event.Event) {
		if _, ok := ev.(event.UtilShutdownRequest); ok {
			p.Publish(event.ShutdownReady{From: event.SourceUI})
		}
	}, event.SourceUtil)

	f.sup.Fatal(errDriver)

	f.clock.Add(5 * time.Second)
	f.reboot.wait(t)
}
