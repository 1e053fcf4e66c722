// Package gps is the position producer module. A search is started for
// every sample that requests a GNSS fix and ends with a fix or when the
// configured GPS timeout runs out.
package gps

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/bus"
	"github.com/simpleiot/assettracker/data"
	"github.com/simpleiot/assettracker/event"
	"github.com/simpleiot/assettracker/metrics"
	"github.com/simpleiot/assettracker/module"
)

// Name of the module
const Name = "gps"

// TimeSetter receives the UTC time of a fix
type TimeSetter interface {
	Set(t time.Time, from string)
}

// Options for New. Bus, Registry and Driver are required.
type Options struct {
	Bus       *bus.Bus
	Registry  *module.Registry
	Driver    Driver
	Time      TimeSetter
	Clock     clock.Clock
	Log       *logrus.Entry
	Metrics   *metrics.Metrics
	QueueSize int
}

type state int

const (
	stateInit state = iota
	stateRunning
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "STATE_INIT"
	case stateRunning:
		return "STATE_RUNNING"
	default:
		return "Unknown state"
	}
}

type subState int

const (
	subStateIdle subState = iota
	subStateSearch
)

func (s subState) String() string {
	switch s {
	case subStateIdle:
		return "SUB_STATE_IDLE"
	case subStateSearch:
		return "SUB_STATE_SEARCH"
	default:
		return "Unknown sub state"
	}
}

type msg struct {
	ev      event.Event
	drv     *Event
	timeout uint64
}

// Module is the GPS module
type Module struct {
	bus      *bus.Bus
	registry *module.Registry
	driver   Driver
	time     TimeSetter
	clock    clock.Clock
	log      *logrus.Entry

	queue *module.Queue[msg]
	stop  chan struct{}

	state    state
	subState subState
	timeout  time.Duration

	searchID uint64
	search   *module.Timer

	shutdownSent bool

	// called after every message, set by tests before Run
	handled func(event.Event)
}

// New creates the GPS module and subscribes it to the bus
func New(o Options) *Module {
	if o.Log == nil {
		o.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}

	log := o.Log.WithField("module", Name)

	m := &Module{
		bus:      o.Bus,
		registry: o.Registry,
		driver:   o.Driver,
		time:     o.Time,
		clock:    o.Clock,
		log:      log,
		queue:    module.NewQueue[msg](Name, o.QueueSize, log, o.Metrics),
		stop:     make(chan struct{}),
	}

	o.Bus.Subscribe(Name, bus.Normal, func(_ bus.Publisher, ev event.Event) {
		m.queue.Enqueue(msg{ev: ev})
	}, event.SourceApp, event.SourceData, event.SourceUtil)

	return m
}

// Run the module main loop. Blocks until Stop is called.
func (m *Module) Run() error {
	m.registry.Start(Name)
	m.setState(stateInit)

	err := m.driver.Init(func(e Event) {
		m.queue.Enqueue(msg{drv: &e})
	})
	if err != nil {
		m.log.WithError(err).Error("GPS setup failed")
		m.bus.Publish(event.Error{From: event.SourceGPS, Err: err})
	}

	for {
		mg, ok := m.queue.Dequeue(m.stop)
		if !ok {
			if m.search != nil {
				m.search.Stop()
			}
			return nil
		}
		m.handle(mg)
		if m.handled != nil {
			m.handled(mg.ev)
		}
	}
}

// Stop the main loop
func (m *Module) Stop(_ error) {
	close(m.stop)
}

func (m *Module) setState(s state) {
	if s == m.state {
		m.log.Debugf("State: %v", s)
		return
	}
	m.log.Debugf("State transition %v --> %v", m.state, s)
	m.state = s
}

func (m *Module) setSubState(s subState) {
	if s == m.subState {
		m.log.Debugf("Sub state: %v", s)
		return
	}
	m.log.Debugf("Sub state transition %v --> %v", m.subState, s)
	m.subState = s
}

func (m *Module) handle(mg msg) {
	switch m.state {
	case stateInit:
		m.onInit(mg)
	case stateRunning:
		switch m.subState {
		case subStateIdle:
			m.onIdle(mg)
		case subStateSearch:
			m.onSearch(mg)
		}
		m.onRunning(mg)
	}

	m.onAllStates(mg)
}

func (m *Module) onInit(mg msg) {
	if e, ok := mg.ev.(event.DataConfigInit); ok {
		m.timeout = e.Config.GPSTimeoutDuration()
		m.setState(stateRunning)
	}
}

func (m *Module) onRunning(mg msg) {
	if e, ok := mg.ev.(event.DataConfigReady); ok {
		m.timeout = e.Config.GPSTimeoutDuration()
	}
}

func gnssRequested(ev event.Event) bool {
	e, ok := ev.(event.AppDataGet)
	return ok && e.Has(data.KindGNSS)
}

func (m *Module) onIdle(mg msg) {
	if gnssRequested(mg.ev) {
		m.searchStart()
		return
	}

	if mg.drv != nil && mg.drv.Type == EventFix {
		m.log.Debug("Fix outside of a search, ignored")
	}
}

func (m *Module) onSearch(mg msg) {
	if gnssRequested(mg.ev) {
		m.log.Warn("GPS search already active and will not be restarted")
		m.log.Warn("Try setting a sample interval greater than the GPS search timeout")
		return
	}

	if mg.timeout != 0 && mg.timeout == m.searchID {
		m.log.Info("GPS search timed out")
		m.bus.Publish(event.GPSTimeout{})
		m.searchStop()
		return
	}

	if mg.drv != nil && mg.drv.Type == EventFix {
		fix := mg.drv.Fix
		fix.Queued = true

		if m.time != nil && !fix.Time.IsZero() {
			m.time.Set(fix.Time, "gps")
		}
		if fix.Time.IsZero() {
			fix.Time = m.clock.Now()
		}

		m.log.Infof("GPS fix: %.6f, %.6f", fix.Lat, fix.Lon)
		m.bus.Publish(event.GPSDataReady{Fix: fix})
		m.searchStop()
	}
}

func (m *Module) onAllStates(mg msg) {
	if mg.drv != nil {
		switch mg.drv.Type {
		case EventAGPSNeeded:
			m.bus.Publish(event.GPSAgpsNeeded{Request: mg.drv.AGPS})
		case EventError:
			m.log.WithError(mg.drv.Err).Error("GPS driver error")
			m.bus.Publish(event.Error{From: event.SourceGPS, Err: mg.drv.Err})
		}
	}

	if _, ok := mg.ev.(event.UtilShutdownRequest); ok {
		if m.subState == subStateSearch {
			m.searchStop()
		}
		if !m.shutdownSent {
			m.shutdownSent = true
			m.bus.Publish(event.ShutdownReady{From: event.SourceGPS})
		}
	}
}

func (m *Module) searchStart() {
	if m.timeout == 0 {
		m.log.Warn("GPS search disabled")
		return
	}

	if err := m.driver.Start(); err != nil {
		m.log.WithError(err).Warn("Failed to start GPS")
		return
	}

	m.searchID++
	id := m.searchID
	m.search = module.NewTimer(m.clock, func() {
		m.queue.Enqueue(msg{timeout: id})
	})
	m.search.Start(m.timeout, 0)

	m.setSubState(subStateSearch)
	m.bus.Publish(event.GPSActive{})
}

func (m *Module) searchStop() {
	m.search.Stop()

	if err := m.driver.Stop(); err != nil {
		m.log.WithError(err).Warn("Failed to stop GPS")
	}

	m.setSubState(subStateIdle)
	m.bus.Publish(event.GPSInactive{})
}
