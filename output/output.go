// Package output drives the status LED from bus events. It is purely
// reactive and handles events on the publisher's goroutine.
package output

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/bus"
	"github.com/simpleiot/assettracker/event"
	"github.com/simpleiot/assettracker/module"
)

// Name of the module
const Name = "output"

// PublishingTime is how long the publishing pattern shows before the LED
// goes back to the mode or GPS pattern
const PublishingTime = 5 * time.Second

// Options for New. Bus, Registry and LED are required.
type Options struct {
	Bus      *bus.Bus
	Registry *module.Registry
	LED      LED
	Clock    clock.Clock
	Log      *logrus.Entry
}

type state int

const (
	stateInit state = iota
	stateRunning
	stateError
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "OUTPUT_STATE_INIT"
	case stateRunning:
		return "OUTPUT_STATE_RUNNING"
	case stateError:
		return "OUTPUT_STATE_ERROR"
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
		return "OUTPUT_SUB_STATE_ACTIVE"
	case subStatePassive:
		return "OUTPUT_SUB_STATE_PASSIVE"
	default:
		return "Unknown sub state"
	}
}

type subSubState int

const (
	subSubStateGPSInactive subSubState = iota
	subSubStateGPSActive
)

func (s subSubState) String() string {
	switch s {
	case subSubStateGPSInactive:
		return "OUTPUT_SUB_SUB_STATE_GPS_INACTIVE"
	case subSubStateGPSActive:
		return "OUTPUT_SUB_SUB_STATE_GPS_ACTIVE"
	default:
		return "Unknown sub sub state"
	}
}

// Module is the output module
type Module struct {
	registry *module.Registry
	led      LED
	log      *logrus.Entry
	revert   *module.Timer

	lock         sync.Mutex
	state        state
	subState     subState
	subSubState  subSubState
	pattern      Pattern
	started      bool
	shutdownSent bool
}

// New creates the output module and subscribes it to the bus
func New(o Options) *Module {
	if o.Log == nil {
		o.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	m := &Module{
		registry: o.Registry,
		led:      o.LED,
		log:      o.Log.WithField("module", Name),
	}

	m.revert = module.NewTimer(o.Clock, m.revertPattern)

	o.Bus.Subscribe(Name, bus.Early, m.handle, event.SourceApp,
		event.SourceData, event.SourceGPS, event.SourceModem, event.SourceUtil)

	return m
}

// Pattern returns the pattern last set
func (m *Module) Pattern() Pattern {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.pattern
}

func (m *Module) setState(s state) {
	if s == m.state {
		return
	}
	m.log.Debugf("State transition %v --> %v", m.state, s)
	m.state = s
}

func (m *Module) setSubState(s subState) {
	if s == m.subState {
		return
	}
	m.log.Debugf("Sub state transition %v --> %v", m.subState, s)
	m.subState = s
}

func (m *Module) setSubSubState(s subSubState) {
	if s == m.subSubState {
		return
	}
	m.log.Debugf("Sub sub state transition %v --> %v", m.subSubState, s)
	m.subSubState = s
}

// must be called with the lock held
func (m *Module) setPattern(p Pattern) {
	m.pattern = p
	if err := m.led.SetPattern(p); err != nil {
		m.log.WithError(err).Warnf("Error setting LED pattern %v", p)
	}
}

// the pattern the LED returns to after publishing
func (m *Module) restingPattern() Pattern {
	if m.subSubState == subSubStateGPSActive {
		return PatternGPSSearching
	}
	if m.subState == subStatePassive {
		return PatternPassive
	}
	return PatternActive
}

func (m *Module) revertPattern() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state != stateRunning {
		return
	}
	m.setPattern(m.restingPattern())
}

func (m *Module) handle(pub bus.Publisher, ev event.Event) {
	m.lock.Lock()
	var publish []event.Event

	switch m.state {
	case stateInit:
		if e, ok := ev.(event.DataConfigInit); ok {
			m.setState(stateRunning)
			if e.Config.Active {
				m.setSubState(subStateActive)
			} else {
				m.setSubState(subStatePassive)
			}
		}
	case stateRunning:
		m.onRunning(ev)
	case stateError:
		// no way out
	}

	switch ev.(type) {
	case event.AppStart:
		if !m.started {
			m.started = true
			m.registry.Start(Name)
			if err := m.led.Init(); err != nil {
				m.log.WithError(err).Error("LED setup failed")
				publish = append(publish, event.Error{From: event.SourceOutput, Err: err})
			}
		}
	case event.UtilShutdownRequest:
		m.revert.Stop()
		m.setPattern(PatternSystemFault)
		m.setState(stateError)
		if !m.shutdownSent {
			m.shutdownSent = true
			publish = append(publish, event.ShutdownReady{From: event.SourceOutput})
		}
	}
	m.lock.Unlock()

	for _, e := range publish {
		pub.Publish(e)
	}
}

func (m *Module) onRunning(ev event.Event) {
	switch e := ev.(type) {
	case event.GPSActive:
		if m.subSubState == subSubStateGPSInactive {
			m.setPattern(PatternGPSSearching)
			m.setSubSubState(subSubStateGPSActive)
		}
	case event.GPSInactive:
		if m.subSubState == subSubStateGPSActive {
			m.setSubSubState(subSubStateGPSInactive)
			m.setPattern(m.restingPattern())
		}
	case event.DataSend, event.DataSendBatch, event.DataUISend:
		m.setPattern(PatternPublishing)
		m.revert.Start(PublishingTime, 0)
	case event.DataConfigReady:
		if e.Config.Active {
			m.setSubState(subStateActive)
		} else {
			m.setSubState(subStatePassive)
		}
	case event.ModemLteConnecting:
		m.setPattern(PatternLTEConnecting)
	}
}
