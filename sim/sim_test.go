package sim_test

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"github.com/simpleiot/assettracker/data"
	"github.com/simpleiot/assettracker/gps"
	"github.com/simpleiot/assettracker/modem"
	"github.com/simpleiot/assettracker/sensors"
	"github.com/simpleiot/assettracker/sim"
)

// the simulated drivers stand in for the real ones
var (
	_ gps.Driver           = (*sim.GPS)(nil)
	_ gps.Assister         = (*sim.GPS)(nil)
	_ modem.Driver         = (*sim.Modem)(nil)
	_ sensors.EnvSensor    = (*sim.Env)(nil)
	_ sensors.MotionSensor = (*sim.Motion)(nil)
)

func TestWalk(t *testing.T) {
	w := sim.NewWalk(2, 1, 0, 3)
	var got []float64
	for i := 0; i < 8; i++ {
		got = append(got, w.Next())
	}
	exp := []float64{1, 0, 0, 1, 2, 3, 3, 2}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Error("walk: ", diff)
	}
}

func TestGPS(t *testing.T) {
	c := clock.NewMock()
	g := sim.NewGPS(c, 63.4, 10.4)

	events := make(chan gps.Event, 10)
	if err := g.Init(func(e gps.Event) { events <- e }); err != nil {
		t.Fatal(err)
	}
	if err := g.Start(); err != nil {
		t.Fatal(err)
	}

	next := func() gps.Event {
		t.Helper()
		select {
		case e := <-events:
			return e
		case <-time.After(time.Second):
			t.Fatal("no gps event")
		}
		return gps.Event{}
	}

	if e := next(); e.Type != gps.EventAGPSNeeded {
		t.Fatal("expected agps request, got: ", e.Type)
	}

	time.Sleep(10 * time.Millisecond)
	c.Add(g.FixDelay)
	e := next()
	if e.Type != gps.EventFix || e.Fix.NumSat == 0 || e.Fix.Time.IsZero() {
		t.Error("fix: ", e)
	}

	// assisted, stopped before the fix
	if err := g.InjectAGPS([]byte{1}); err != nil {
		t.Fatal(err)
	}
	_ = g.Start()
	_ = g.Stop()
	c.Add(g.FixDelay)

	select {
	case e := <-events:
		t.Error("unexpected event: ", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestModem(t *testing.T) {
	c := clock.NewMock()
	m := sim.NewModem(c)

	st, _ := m.Status()
	if st.Reg != modem.RegNotRegistered {
		t.Error("registered before connect")
	}

	_ = m.Connect()
	st, _ = m.Status()
	if st.Reg != modem.RegSearching {
		t.Error("status after connect: ", st.Reg)
	}

	c.Add(m.AttachDelay)
	st, _ = m.Status()
	if !st.Registered() {
		t.Error("not registered after attach delay")
	}

	s, _ := m.Sample()
	if s.IP == "" || s.Mode != "LTE-M" || s.Firmware == "" {
		t.Error("sample: ", s)
	}

	_ = m.PowerOff()
	st, _ = m.Status()
	if st.Registered() {
		t.Error("registered after power off")
	}
}

func TestMotion(t *testing.T) {
	c := clock.NewMock()
	m := sim.NewMotion(c)
	_ = m.SetThreshold(100)

	moves := make(chan data.Accel, 10)
	if err := m.Start(func(a data.Accel) { moves <- a }); err != nil {
		t.Fatal(err)
	}

	// strength walks 0, 40, 80, 120, 160
	for i := 0; i < 5; i++ {
		c.Add(m.Period)
		time.Sleep(5 * time.Millisecond)
	}

	var got []float64
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case a := <-moves:
			got = append(got, a.Z)
		case <-timeout:
			t.Fatal("movements: ", got)
		}
	}
	if diff := cmp.Diff([]float64{120, 160}, got); diff != "" {
		t.Error("movements: ", diff)
	}
}
