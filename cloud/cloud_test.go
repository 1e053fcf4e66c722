package cloud_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/simpleiot/assettracker/bus"
	"github.com/simpleiot/assettracker/cloud"
	"github.com/simpleiot/assettracker/codec"
	"github.com/simpleiot/assettracker/data"
	"github.com/simpleiot/assettracker/event"
	"github.com/simpleiot/assettracker/module"
	"github.com/simpleiot/assettracker/testutil"
	"github.com/simpleiot/assettracker/transport"
)

const wait = 2 * time.Second

type sent struct {
	ep      transport.Endpoint
	payload string
}

type fakeTransport struct {
	lock        sync.Mutex
	connects    int
	disconnects int
	sent        []sent
	sendErr     error
	handler     func(transport.Event)
}

func (f *fakeTransport) Connect() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.connects++
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeTransport) Send(ep transport.Endpoint, payload []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.sent = append(f.sent, sent{ep, string(payload)})
	return f.sendErr
}

func (f *fakeTransport) SetHandler(h func(transport.Event)) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.handler = h
}

func (f *fakeTransport) emit(ev transport.Event) {
	f.lock.Lock()
	h := f.handler
	f.lock.Unlock()
	h(ev)
}

func (f *fakeTransport) connectCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.connects
}

func (f *fakeTransport) sends() []sent {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]sent{}, f.sent...)
}

type fakeAssister struct {
	lock     sync.Mutex
	payloads []string
}

func (f *fakeAssister) InjectAGPS(p []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.payloads = append(f.payloads, string(p))
	return nil
}

func (f *fakeAssister) injected() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string{}, f.payloads...)
}

type fixture struct {
	bus      *bus.Bus
	rec      *testutil.Recorder
	clock    *clock.Mock
	tr       *fakeTransport
	assister *fakeAssister
	hook     *test.Hook
	marks    atomic.Int32
	syncs    int
}

func newFixture(t *testing.T, maxRetries int) *fixture {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &fixture{
		bus:      bus.New(),
		clock:    clock.NewMock(),
		tr:       &fakeTransport{},
		assister: &fakeAssister{},
		hook:     hook,
	}

	m := cloud.New(cloud.Options{
		Bus:        f.bus,
		Registry:   module.NewRegistry(nil),
		Transport:  f.tr,
		Codec:      codec.JSON{},
		Assister:   f.assister,
		Clock:      f.clock,
		Log:        logrus.NewEntry(logger),
		MaxRetries: maxRetries,
	})

	f.rec = testutil.NewRecorder(f.bus)

	m.OnHandled(func(ev event.Event) {
		if _, ok := ev.(event.AppStart); ok {
			f.marks.Add(1)
		}
	})

	go func() {
		if err := m.Run(); err != nil {
			t.Error("run: ", err)
		}
	}()
	t.Cleanup(func() { m.Stop(nil) })

	return f
}

// sync waits until the module handled everything published so far.
// AppStart is ignored by the module but still goes through its queue.
func (f *fixture) sync(t *testing.T) {
	t.Helper()
	f.syncs++
	f.bus.Publish(event.AppStart{})
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if f.marks.Load() >= int32(f.syncs) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("module did not drain its queue")
}

// tick advances the mock clock until n connect attempts were made. Zero
// delay timers only fire on a clock update, and the timer may be armed
// after the first update.
func (f *fixture) tick(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if f.tr.connectCount() >= n {
			return
		}
		f.clock.Add(0)
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %v connect attempts, got %v", n, f.tr.connectCount())
}

func (f *fixture) waitConnects(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if f.tr.connectCount() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %v connect attempts, got %v", n, f.tr.connectCount())
}

func (f *fixture) waitSends(t *testing.T, n int) []sent {
	t.Helper()
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if s := f.tr.sends(); len(s) >= n {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %v sends, got %v", n, f.tr.sends())
	return nil
}

func (f *fixture) connected(t *testing.T) {
	t.Helper()
	f.bus.Publish(event.ModemLteConnected{})
	f.waitConnects(t, 1)
	f.tr.emit(transport.Event{Type: transport.EventConnected})
	testutil.WaitFor[event.CloudConnected](t, f.rec, 1, wait)
	f.sync(t)
}

func TestBackoffTable(t *testing.T) {
	prev := time.Duration(0)
	for i := 0; i < 20; i++ {
		b := cloud.Backoff(i)
		if b < prev {
			t.Errorf("backoff decreased at %v: %v < %v", i, b, prev)
		}
		prev = b
	}

	if cloud.Backoff(0) != 32*time.Second {
		t.Error("first backoff: ", cloud.Backoff(0))
	}
	if cloud.Backoff(100) != cloud.Backoff(14) {
		t.Error("backoff not clamped")
	}
}

func TestConnectBackoff(t *testing.T) {
	f := newFixture(t, 0)

	f.bus.Publish(event.ModemLteConnected{})
	f.waitConnects(t, 1)

	// retry at 32 s, then 64 s
	f.clock.Add(31 * time.Second)
	f.sync(t)
	if n := f.tr.connectCount(); n != 1 {
		t.Fatal("retry before backoff expired: ", n)
	}

	f.clock.Add(time.Second)
	f.waitConnects(t, 2)

	f.clock.Add(63 * time.Second)
	f.sync(t)
	if n := f.tr.connectCount(); n != 2 {
		t.Fatal("second retry before backoff expired: ", n)
	}

	f.clock.Add(time.Second)
	f.waitConnects(t, 3)

	// a confirmed connect resets the counter and stops the check
	f.tr.emit(transport.Event{Type: transport.EventConnected})
	testutil.WaitFor[event.CloudConnected](t, f.rec, 1, wait)
	f.sync(t)
	f.clock.Add(time.Hour)
	f.sync(t)
	if n := f.tr.connectCount(); n != 3 {
		t.Fatal("connect check not stopped: ", n)
	}

	// a disconnect retries right away and starts over at 32 s
	f.tr.emit(transport.Event{Type: transport.EventDisconnected})
	f.tick(t, 4)

	f.clock.Add(31 * time.Second)
	f.sync(t)
	if n := f.tr.connectCount(); n != 4 {
		t.Fatal("retry counter not reset: ", n)
	}
	f.clock.Add(time.Second)
	f.waitConnects(t, 5)
}

func TestTooManyRetries(t *testing.T) {
	f := newFixture(t, 2)

	f.bus.Publish(event.ModemLteConnected{})
	f.waitConnects(t, 1)

	for i := 0; i < 2; i++ {
		f.clock.Add(cloud.Backoff(i))
		f.waitConnects(t, i+2)
	}

	f.clock.Add(cloud.Backoff(2))
	errs := testutil.WaitFor[event.Error](t, f.rec, 1, wait)
	if !errors.Is(errs[0].Err, cloud.ErrTooManyRetries) {
		t.Error("wrong error: ", errs[0].Err)
	}
	if errs[0].From != event.SourceCloud {
		t.Error("wrong source: ", errs[0].From)
	}

	// no further attempts are scheduled
	f.clock.Add(24 * time.Hour)
	f.sync(t)
	if n := f.tr.connectCount(); n != 3 {
		t.Error("connect attempts: ", n)
	}
	if n := testutil.Count[event.Error](f.rec); n != 1 {
		t.Error("errors: ", n)
	}
}

func TestLteDisconnected(t *testing.T) {
	f := newFixture(t, 0)
	f.connected(t)

	f.bus.Publish(event.ModemLteDisconnected{})
	f.sync(t)

	// data is no longer forwarded
	f.bus.Publish(event.DataSend{Handle: 1, Payload: []byte("x")})
	f.sync(t)
	if s := f.tr.sends(); len(s) != 0 {
		t.Error("sent while LTE down: ", s)
	}

	// the old connect check does not fire
	f.clock.Add(time.Hour)
	f.sync(t)
	if n := f.tr.connectCount(); n != 1 {
		t.Error("connect attempts: ", n)
	}

	f.bus.Publish(event.ModemLteConnected{})
	f.waitConnects(t, 2)
}

func TestForward(t *testing.T) {
	f := newFixture(t, 0)
	f.connected(t)

	f.bus.Publish(event.DataSend{Handle: 1, Payload: []byte("single")})
	f.bus.Publish(event.DataSendBatch{Handle: 2, Payload: []byte("batch")})
	f.bus.Publish(event.DataUISend{Handle: 3, Payload: []byte("ui")})
	f.bus.Publish(event.DataConfigSend{Handle: 4, Payload: []byte("cfg")})
	f.bus.Publish(event.DataConfigGet{})

	s := f.waitSends(t, 5)
	exp := []sent{
		{transport.EndpointState, "single"},
		{transport.EndpointBatch, "batch"},
		{transport.EndpointUI, "ui"},
		{transport.EndpointState, "cfg"},
		{transport.EndpointStateGet, ""},
	}
	if diff := cmp.Diff(exp, s, cmp.AllowUnexported(sent{})); diff != "" {
		t.Error("sends: ", diff)
	}

	acks := testutil.WaitFor[event.CloudDataAck](t, f.rec, 4, wait)
	var handles []data.Handle
	for _, a := range acks {
		handles = append(handles, a.Handle)
	}
	if diff := cmp.Diff([]data.Handle{1, 2, 3, 4}, handles); diff != "" {
		t.Error("acks: ", diff)
	}
}

func TestForwardSendError(t *testing.T) {
	f := newFixture(t, 0)
	f.connected(t)

	f.tr.lock.Lock()
	f.tr.sendErr = errors.New("broken pipe")
	f.tr.lock.Unlock()

	f.bus.Publish(event.DataSend{Handle: 7, Payload: []byte("single")})
	// empty payloads are not acknowledged
	f.bus.Publish(event.DataSend{Handle: 8})

	testutil.WaitFor[event.CloudDataAck](t, f.rec, 1, wait)
	f.sync(t)

	acks := testutil.Find[event.CloudDataAck](f.rec)
	if len(acks) != 1 || acks[0].Handle != 7 {
		t.Error("acks: ", acks)
	}

	// send errors are not systemic
	if n := testutil.Count[event.Error](f.rec); n != 0 {
		t.Error("send error escalated")
	}
}

func TestDataReceived(t *testing.T) {
	f := newFixture(t, 0)
	f.connected(t)

	cfg := data.DefaultConfig()
	cfg.ActiveWait = 300
	f.bus.Publish(event.DataConfigReady{Config: cfg})
	f.sync(t)

	// fields missing from the document keep the cached value
	f.tr.emit(transport.Event{
		Type:    transport.EventDataReceived,
		Payload: []byte(`{"state":{"cfg":{"gpst":90}}}`),
	})

	rx := testutil.WaitFor[event.CloudConfigReceived](t, f.rec, 1, wait)[0]
	exp := cfg
	exp.GPSTimeout = 90
	if diff := cmp.Diff(exp, rx.Config); diff != "" {
		t.Error("config received: ", diff)
	}

	// not a config document, handed to the GPS
	f.tr.emit(transport.Event{
		Type:    transport.EventDataReceived,
		Payload: []byte{0x01, 0x02, 0x03},
	})
	if diff := cmp.Diff([]string{"\x01\x02\x03"}, f.assister.injected()); diff != "" {
		t.Error("agps: ", diff)
	}

	// a broken config document is an error
	f.tr.emit(transport.Event{
		Type:    transport.EventDataReceived,
		Payload: []byte(`{"cfg":{"actw":"soon"}}`),
	})
	testutil.WaitFor[event.Error](t, f.rec, 1, wait)
	if n := len(f.assister.injected()); n != 1 {
		t.Error("broken config handed to the GPS")
	}
}

func TestTransportEvents(t *testing.T) {
	f := newFixture(t, 0)

	f.tr.emit(transport.Event{Type: transport.EventConnecting})
	f.tr.emit(transport.Event{Type: transport.EventFotaStart, Version: "2.0.0"})
	f.tr.emit(transport.Event{Type: transport.EventFotaDone, Version: "2.0.0"})
	f.tr.emit(transport.Event{Type: transport.EventError, Err: errors.New("socket")})

	exp := []string{"cloud.connecting", "cloud.fota_done", "cloud.error"}
	if diff := cmp.Diff(exp, f.rec.Names()); diff != "" {
		t.Error("events: ", diff)
	}

	done := testutil.Find[event.CloudFotaDone](f.rec)[0]
	if done.Version != "2.0.0" {
		t.Error("fota version: ", done.Version)
	}
}

func TestAgpsRequest(t *testing.T) {
	f := newFixture(t, 0)

	// skipped while the cloud is down
	f.bus.Publish(event.ModemLteConnected{})
	f.waitConnects(t, 1)
	f.bus.Publish(event.GPSAgpsNeeded{Request: data.AGPSRequest{UTC: true}})
	f.sync(t)
	if s := f.tr.sends(); len(s) != 0 {
		t.Fatal("agps request sent while disconnected: ", s)
	}

	f.tr.emit(transport.Event{Type: transport.EventConnected})
	testutil.WaitFor[event.CloudConnected](t, f.rec, 1, wait)
	f.bus.Publish(event.GPSAgpsNeeded{Request: data.AGPSRequest{UTC: true}})

	s := f.waitSends(t, 1)
	if s[0].ep != transport.EndpointAGPS {
		t.Error("agps endpoint: ", s[0].ep)
	}
}

func TestShutdown(t *testing.T) {
	f := newFixture(t, 0)
	f.connected(t)

	f.bus.Publish(event.UtilShutdownRequest{})
	f.bus.Publish(event.UtilShutdownRequest{})
	testutil.WaitFor[event.ShutdownReady](t, f.rec, 1, wait)
	f.sync(t)

	if n := testutil.Count[event.ShutdownReady](f.rec); n != 1 {
		t.Error("shutdown ready: ", n)
	}

	f.tr.lock.Lock()
	defer f.tr.lock.Unlock()
	if f.tr.disconnects == 0 {
		t.Error("transport not disconnected")
	}
}
