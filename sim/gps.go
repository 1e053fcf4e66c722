package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/simpleiot/assettracker/data"
	"github.com/simpleiot/assettracker/gps"
)

// GPS is a simulated receiver that finds a fix FixDelay after every start.
// Without assistance data the first start asks for it.
type GPS struct {
	FixDelay time.Duration

	clock clock.Clock

	lock     sync.Mutex
	handler  func(gps.Event)
	timer    *clock.Timer
	assisted bool
	lat      Walk
	lon      Walk
}

// NewGPS creates a simulated receiver walking around lat, lon
func NewGPS(c clock.Clock, lat, lon float64) *GPS {
	if c == nil {
		c = clock.New()
	}
	return &GPS{
		FixDelay: 5 * time.Second,
		clock:    c,
		lat:      NewWalk(lat, 0.0005, lat-0.01, lat+0.01),
		lon:      NewWalk(lon, 0.0005, lon-0.01, lon+0.01),
	}
}

// Init implements gps.Driver
func (g *GPS) Init(handler func(gps.Event)) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.handler = handler
	return nil
}

// Start implements gps.Driver
func (g *GPS) Start() error {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.handler == nil {
		return errors.New("gps not initialized")
	}

	if !g.assisted {
		h := g.handler
		go h(gps.Event{Type: gps.EventAGPSNeeded, AGPS: data.AGPSRequest{
			SvMaskEphe: 0xffffffff,
			SvMaskAlm:  0xffffffff,
			UTC:        true,
			Position:   true,
			SysTime:    true,
		}})
	}

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = g.clock.AfterFunc(g.FixDelay, g.fix)
	return nil
}

func (g *GPS) fix() {
	g.lock.Lock()
	if g.timer == nil {
		g.lock.Unlock()
		return
	}
	g.timer = nil
	now := g.clock.Now().UTC()
	fix := data.GPS{
		Lat:    g.lat.Next(),
		Lon:    g.lon.Next(),
		Alt:    120,
		Acc:    5,
		Spd:    1.2,
		Hdg:    90,
		NumSat: 9,
		Time:   now,
	}
	h := g.handler
	g.lock.Unlock()

	h(gps.Event{Type: gps.EventFix, Fix: fix})
}

// Stop implements gps.Driver
func (g *GPS) Stop() error {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	return nil
}

// InjectAGPS implements gps.Assister
func (g *GPS) InjectAGPS(payload []byte) error {
	if len(payload) == 0 {
		return errors.New("empty assistance data")
	}
	g.lock.Lock()
	defer g.lock.Unlock()
	g.assisted = true
	return nil
}
