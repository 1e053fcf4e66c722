package sensors_test

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
	"github.com/simpleiot/assettracker/data"
	"github.com/simpleiot/assettracker/event"
	"github.com/simpleiot/assettracker/module"
	"github.com/simpleiot/assettracker/sensors"
	"github.com/simpleiot/assettracker/testutil"
)

const wait = 2 * time.Second

type fakeEnv struct {
	env data.Env
	err error
}

func (f *fakeEnv) Env() (data.Env, error) {
	return f.env, f.err
}

type fakeMotion struct {
	lock       sync.Mutex
	handler    func(data.Accel)
	thresholds []int
}

func (f *fakeMotion) Start(h func(data.Accel)) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.handler = h
	return nil
}

func (f *fakeMotion) SetThreshold(th int) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.thresholds = append(f.thresholds, th)
	return nil
}

func (f *fakeMotion) trigger(a data.Accel) {
	f.lock.Lock()
	h := f.handler
	f.lock.Unlock()
	h(a)
}

func (f *fakeMotion) set() []int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]int{}, f.thresholds...)
}

type fixture struct {
	bus    *bus.Bus
	rec    *testutil.Recorder
	clock  *clock.Mock
	motion *fakeMotion
	marks  atomic.Int32
	syncs  int32
}

func newFixture(t *testing.T, env sensors.EnvSensor) *fixture {
	t.Helper()

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &fixture{
		bus:    bus.New(),
		clock:  clock.NewMock(),
		motion: &fakeMotion{},
	}
	f.rec = testutil.NewRecorder(f.bus)

	m := sensors.New(sensors.Options{
		Bus:      f.bus,
		Registry: module.NewRegistry(nil),
		Env:      env,
		Motion:   f.motion,
		Clock:    f.clock,
		Log:      logrus.NewEntry(logger),
	})

	m.OnHandled(func(ev event.Event) {
		if _, ok := ev.(event.AppConfigGet); ok {
			f.marks.Add(1)
		}
	})

	go func() {
		if err := m.Run(); err != nil {
			t.Error("run: ", err)
		}
	}()
	t.Cleanup(func() { m.Stop(nil) })

	// Start is called from Run
	f.sync(t)

	return f
}

func (f *fixture) sync(t *testing.T) {
	t.Helper()
	f.syncs++
	f.bus.Publish(event.AppConfigGet{})
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if f.marks.Load() >= f.syncs {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("module did not drain its queue")
}

func (f *fixture) configure(t *testing.T) {
	t.Helper()
	f.bus.Publish(event.DataConfigInit{Config: data.DefaultConfig()})
	f.sync(t)
}

var envRequest = event.AppDataGet{Kinds: []data.Kind{data.KindModem, data.KindEnvironmental}}

func TestEnvironmental(t *testing.T) {
	f := newFixture(t, &fakeEnv{env: data.Env{Temp: 21.5, Hum: 40}})

	f.bus.Publish(envRequest)
	f.sync(t)
	if n := testutil.Count[event.SensorEnvReady](f.rec); n != 0 {
		t.Fatal("sampled before configuration")
	}

	f.configure(t)
	f.clock.Set(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))

	f.bus.Publish(envRequest)
	f.bus.Publish(event.AppDataGet{Kinds: []data.Kind{data.KindGNSS}})
	f.sync(t)

	envs := testutil.Find[event.SensorEnvReady](f.rec)
	if len(envs) != 1 {
		t.Fatal("env samples: ", len(envs))
	}
	exp := data.Env{Temp: 21.5, Hum: 40, Time: f.clock.Now(), Queued: true}
	if diff := cmp.Diff(exp, envs[0].Env); diff != "" {
		t.Error("env: ", diff)
	}
}

func TestEnvironmentalErrors(t *testing.T) {
	tests := []struct {
		name        string
		env         sensors.EnvSensor
		unsupported int
		errors      int
	}{
		{"no sensor", nil, 1, 0},
		{"not supported", &fakeEnv{err: sensors.ErrNotSupported}, 1, 0},
		{"read error", &fakeEnv{err: errors.New("i2c timeout")}, 0, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.env)
			f.configure(t)

			f.bus.Publish(envRequest)
			f.sync(t)

			if n := testutil.Count[event.SensorEnvNotSupported](f.rec); n != tc.unsupported {
				t.Error("not supported: ", n)
			}
			errs := testutil.Find[event.Error](f.rec)
			if len(errs) != tc.errors {
				t.Fatal("errors: ", len(errs))
			}
			if len(errs) > 0 && errs[0].From != event.SourceSensor {
				t.Error("error source: ", errs[0].From)
			}
			if n := testutil.Count[event.SensorEnvReady](f.rec); n != 0 {
				t.Error("env ready: ", n)
			}
		})
	}
}

func TestThreshold(t *testing.T) {
	f := newFixture(t, nil)
	f.configure(t)

	cfg := data.DefaultConfig()
	cfg.MovementThreshold = 250
	f.bus.Publish(event.DataConfigReady{Config: cfg})
	f.sync(t)

	if diff := cmp.Diff([]int{100, 250}, f.motion.set()); diff != "" {
		t.Error("thresholds: ", diff)
	}
}

func TestMovementRateLimit(t *testing.T) {
	f := newFixture(t, nil)

	f.motion.trigger(data.Accel{Z: 120})
	f.motion.trigger(data.Accel{Z: 130})
	f.sync(t)

	moves := testutil.Find[event.SensorMovementReady](f.rec)
	if len(moves) != 1 {
		t.Fatal("movements: ", len(moves))
	}
	exp := data.Accel{Z: 120, Time: f.clock.Now(), Queued: true}
	if diff := cmp.Diff(exp, moves[0].Accel); diff != "" {
		t.Error("movement: ", diff)
	}

	f.clock.Add(9 * time.Second)
	f.motion.trigger(data.Accel{Z: 140})
	f.sync(t)
	if n := testutil.Count[event.SensorMovementReady](f.rec); n != 1 {
		t.Error("movement within interval: ", n)
	}

	f.clock.Add(time.Second)
	f.motion.trigger(data.Accel{Z: 150})
	f.sync(t)
	if n := testutil.Count[event.SensorMovementReady](f.rec); n != 2 {
		t.Error("movement after interval: ", n)
	}
}

func TestShutdown(t *testing.T) {
	f := newFixture(t, nil)

	f.bus.Publish(event.UtilShutdownRequest{})
	f.bus.Publish(event.UtilShutdownRequest{})
	f.sync(t)

	acks := testutil.Find[event.ShutdownReady](f.rec)
	if len(acks) != 1 || acks[0].From != event.SourceSensor {
		t.Error("shutdown ready: ", acks)
	}
}
