// Package app is the orchestration module. It owns the sampling timers and
// starts every sampling cycle: periodically in active mode, on movement in
// passive mode.
package app

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
const Name = "app"

// InitialSampleTimeout is the deadline of the baseline sample taken when
// the date time is first obtained.
const InitialSampleTimeout = 10 * time.Second

// gpsMargin is added to the GPS timeout to get the deadline of a full
// sample.
const gpsMargin = 60 * time.Second

// Options for New. Bus and Registry are required.
type Options struct {
	Bus       *bus.Bus
	Registry  *module.Registry
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
	subStateActive subState = iota
	subStatePassive
)

func (s subState) String() string {
	switch s {
	case subStateActive:
		return "SUB_STATE_ACTIVE_MODE"
	case subStatePassive:
		return "SUB_STATE_PASSIVE_MODE"
	default:
		return "Unknown sub state"
	}
}

// Module is the orchestration module
type Module struct {
	bus      *bus.Bus
	registry *module.Registry
	log      *logrus.Entry

	queue *module.Queue[event.Event]
	stop  chan struct{}

	dataSample         *module.Timer
	movementTimeout    *module.Timer
	movementResolution *module.Timer

	state    state
	subState subState
	config   data.Config

	initialSampled bool
	shutdownSent   bool

	// called after every event, set by tests before Run
	handled func(event.Event)
}

// New creates the orchestration module and subscribes it to the bus
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
		log:      log,
		queue:    module.NewQueue[event.Event](Name, o.QueueSize, log, o.Metrics),
		stop:     make(chan struct{}),
	}

	sample := func() { m.bus.Publish(event.AppDataGetAll{}) }
	m.dataSample = module.NewTimer(o.Clock, sample)
	m.movementTimeout = module.NewTimer(o.Clock, sample)
	// only its running state matters
	m.movementResolution = module.NewTimer(o.Clock, func() {})

	o.Bus.Subscribe(Name, bus.Normal, func(_ bus.Publisher, ev event.Event) {
		m.queue.Enqueue(ev)
	}, event.SourceApp, event.SourceCloud, event.SourceData,
		event.SourceSensor, event.SourceUtil, event.SourceModem)

	return m
}

// Run the module main loop. Blocks until Stop is called.
func (m *Module) Run() error {
	m.registry.Start(Name)
	m.setState(stateInit)

	m.bus.Publish(event.AppStart{})

	for {
		ev, ok := m.queue.Dequeue(m.stop)
		if !ok {
			m.stopTimers()
			return nil
		}
		m.handle(ev)
		if m.handled != nil {
			m.handled(ev)
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

func (m *Module) handle(ev event.Event) {
	switch m.state {
	case stateInit:
		m.onInit(ev)
	case stateRunning:
		switch m.subState {
		case subStateActive:
			m.onActive(ev)
		case subStatePassive:
			m.onPassive(ev)
		}
		m.onRunning(ev)
	}

	m.onAllStates(ev)
}

func (m *Module) onInit(ev event.Event) {
	e, ok := ev.(event.DataConfigInit)
	if !ok {
		return
	}

	m.config = e.Config
	m.applyMode()
	m.setState(stateRunning)
}

// applyMode arms the timer of the configured mode and stops the other one
func (m *Module) applyMode() {
	if m.config.Active {
		m.log.Infof("Device mode: Active, data sample interval %v",
			m.config.ActiveWaitDuration())
		d := m.config.ActiveWaitDuration()
		m.dataSample.Start(d, d)
		m.movementTimeout.Stop()
		m.setSubState(subStateActive)
		return
	}

	m.log.Infof("Device mode: Passive, movement timeout %v",
		m.config.MovementTimeoutDuration())
	d := m.config.MovementTimeoutDuration()
	m.movementTimeout.Start(d, d)
	m.dataSample.Stop()
	m.setSubState(subStatePassive)
}

func (m *Module) configReady(ev event.Event) bool {
	e, ok := ev.(event.DataConfigReady)
	if !ok {
		return false
	}

	m.config = e.Config
	// acknowledge the configuration to the cloud
	m.bus.Publish(event.AppConfigSend{})
	m.applyMode()
	return true
}

func (m *Module) onActive(ev event.Event) {
	m.configReady(ev)
}

func (m *Module) onPassive(ev event.Event) {
	if m.configReady(ev) {
		return
	}

	if _, ok := ev.(event.SensorMovementReady); ok {
		if m.movementResolution.Running() {
			return
		}

		m.dataGetAll()

		m.log.Infof("%v until movement can trigger a new data sample",
			m.config.PassiveWaitDuration())
		m.movementResolution.Start(m.config.PassiveWaitDuration(), 0)
	}
}

func (m *Module) onRunning(ev event.Event) {
	switch ev.(type) {
	case event.CloudConnected:
		// always report the device configuration on a new connection
		m.bus.Publish(event.AppConfigGet{})
		m.bus.Publish(event.AppConfigSend{})
	case event.DataDateTimeObtained:
		if !m.initialSampled {
			m.initialSampled = true
			m.dataGetInit()
		}
	case event.AppDataGetAll:
		m.dataGetAll()
	}
}

func (m *Module) onAllStates(ev event.Event) {
	if _, ok := ev.(event.UtilShutdownRequest); ok {
		m.stopTimers()
		if !m.shutdownSent {
			m.shutdownSent = true
			m.bus.Publish(event.ShutdownReady{From: event.SourceApp})
		}
	}
}

func (m *Module) stopTimers() {
	m.dataSample.Stop()
	m.movementTimeout.Stop()
	m.movementResolution.Stop()
}

func (m *Module) dataGetAll() {
	m.bus.Publish(event.AppDataGet{
		Kinds: []data.Kind{
			data.KindModem,
			data.KindBattery,
			data.KindEnvironmental,
			data.KindGNSS,
		},
		Timeout: m.config.GPSTimeoutDuration() + gpsMargin,
	})
}

func (m *Module) dataGetInit() {
	m.bus.Publish(event.AppDataGet{
		Kinds: []data.Kind{
			data.KindModem,
			data.KindBattery,
			data.KindEnvironmental,
		},
		Timeout: InitialSampleTimeout,
	})
}
