// Package sensors is the sensor producer module. It answers environmental
// sample requests and turns motion driver triggers into movement events.
package sensors

import (
	"errors"
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
const Name = "sensor"

// DefaultMovementStoreInterval is the minimum time between two movement
// events
const DefaultMovementStoreInterval = 10 * time.Second

// TimeSource timestamps samples, usually the corrected date time
type TimeSource interface {
	Now() time.Time
}

// Options for New. Bus and Registry are required. A nil Env answers every
// environmental request with SensorEnvNotSupported, a nil Motion never
// reports movement. Time defaults to Clock, which also drives the movement
// rate limit.
type Options struct {
	Bus      *bus.Bus
	Registry *module.Registry
	Env      EnvSensor
	Motion   MotionSensor
	Time     TimeSource
	Clock    clock.Clock
	Log      *logrus.Entry
	Metrics  *metrics.Metrics

	MovementStoreInterval time.Duration
	QueueSize             int
}

type state int

const (
	stateInit state = iota
	stateRunning
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "SENSOR_STATE_INIT"
	case stateRunning:
		return "SENSOR_STATE_RUNNING"
	default:
		return "Unknown state"
	}
}

type msg struct {
	ev    event.Event
	accel *data.Accel
}

// Module is the sensor module
type Module struct {
	bus      *bus.Bus
	registry *module.Registry
	env      EnvSensor
	motion   MotionSensor
	time     TimeSource
	clock    clock.Clock
	log      *logrus.Entry
	interval time.Duration

	queue *module.Queue[msg]
	stop  chan struct{}

	state        state
	lastMovement time.Time
	shutdownSent bool

	// called after every message, set by tests before Run
	handled func(event.Event)
}

// New creates the sensor module and subscribes it to the bus
func New(o Options) *Module {
	if o.Log == nil {
		o.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Time == nil {
		o.Time = o.Clock
	}
	if o.MovementStoreInterval <= 0 {
		o.MovementStoreInterval = DefaultMovementStoreInterval
	}

	log := o.Log.WithField("module", Name)

	m := &Module{
		bus:      o.Bus,
		registry: o.Registry,
		env:      o.Env,
		motion:   o.Motion,
		time:     o.Time,
		clock:    o.Clock,
		log:      log,
		interval: o.MovementStoreInterval,
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

	if m.motion != nil {
		err := m.motion.Start(func(a data.Accel) {
			m.queue.Enqueue(msg{accel: &a})
		})
		if err != nil {
			m.fail(err)
		}
	}

	for {
		mg, ok := m.queue.Dequeue(m.stop)
		if !ok {
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

func (m *Module) fail(err error) {
	m.log.WithError(err).Error("Sensor error")
	m.bus.Publish(event.Error{From: event.SourceSensor, Err: err})
}

func (m *Module) handle(mg msg) {
	switch m.state {
	case stateInit:
		if e, ok := mg.ev.(event.DataConfigInit); ok {
			m.setThreshold(e.Config.MovementThreshold)
			m.setState(stateRunning)
		}
	case stateRunning:
		switch e := mg.ev.(type) {
		case event.DataConfigReady:
			m.setThreshold(e.Config.MovementThreshold)
		case event.AppDataGet:
			if e.Has(data.KindEnvironmental) {
				m.envGet()
			}
		}
	}

	if mg.accel != nil {
		m.movement(*mg.accel)
	}

	if _, ok := mg.ev.(event.UtilShutdownRequest); ok && !m.shutdownSent {
		m.shutdownSent = true
		m.bus.Publish(event.ShutdownReady{From: event.SourceSensor})
	}
}

func (m *Module) setThreshold(threshold int) {
	if m.motion == nil {
		return
	}
	if err := m.motion.SetThreshold(threshold); err != nil {
		m.log.WithError(err).Warn("Error setting movement threshold")
		return
	}
	m.log.Debugf("Movement threshold: %v", threshold)
}

// The aggregation module waits for an answer to every requested kind, so
// missing hardware still gets one.
func (m *Module) envGet() {
	if m.env == nil {
		m.bus.Publish(event.SensorEnvNotSupported{})
		return
	}

	env, err := m.env.Env()
	if errors.Is(err, ErrNotSupported) {
		m.log.Debug("No environmental sensor")
		m.bus.Publish(event.SensorEnvNotSupported{})
		return
	}
	if err != nil {
		m.fail(err)
		return
	}

	env.Time = m.time.Now()
	env.Queued = true
	m.bus.Publish(event.SensorEnvReady{Env: env})
}

func (m *Module) movement(a data.Accel) {
	now := m.clock.Now()
	if !m.lastMovement.IsZero() && now.Sub(m.lastMovement) < m.interval {
		m.log.Debug("Movement within store interval, dropped")
		return
	}
	m.lastMovement = now

	a.Time = m.time.Now()
	a.Queued = true
	m.bus.Publish(event.SensorMovementReady{Accel: a})
}
