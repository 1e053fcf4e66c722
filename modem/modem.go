// Package modem is the LTE modem producer module. It owns the network
// attach, reports registration changes, and samples modem and battery
// data on request.
package modem

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
const Name = "modem"

// DefaultPollInterval is how often the registration is read
const DefaultPollInterval = 5 * time.Second

// ErrNoSIM is reported when the modem can not access the SIM card
var ErrNoSIM = errors.New("no SIM card detected")

// TimeSource timestamps samples, usually the corrected date time
type TimeSource interface {
	Now() time.Time
}

// Options for New. Bus, Registry and Driver are required. Time defaults to
// Clock.
type Options struct {
	Bus      *bus.Bus
	Registry *module.Registry
	Driver   Driver
	Time     TimeSource
	Clock    clock.Clock
	Log      *logrus.Entry
	Metrics  *metrics.Metrics

	// reported with every modem sample
	AppVersion string
	Board      string
	// a different firmware is logged once
	ExpectedFirmware string

	PollInterval time.Duration
	QueueSize    int
}

type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateConnected
	stateShuttingDown
)

func (s state) String() string {
	switch s {
	case stateDisconnected:
		return "LTE_STATE_DISCONNECTED"
	case stateConnecting:
		return "LTE_STATE_CONNECTING"
	case stateConnected:
		return "LTE_STATE_CONNECTED"
	case stateShuttingDown:
		return "LTE_STATE_SHUTTING_DOWN"
	default:
		return "Unknown state"
	}
}

type msg struct {
	ev   event.Event
	poll bool
}

// Module is the modem module
type Module struct {
	bus      *bus.Bus
	registry *module.Registry
	driver   Driver
	time     TimeSource
	clock    clock.Clock
	log      *logrus.Entry
	opts     Options

	queue *module.Queue[msg]
	stop  chan struct{}
	poll  *module.Timer

	state           state
	cell            data.Cell
	uiccReported    bool
	firmwareChecked bool
	shutdownSent    bool

	// called after every message, set by tests before Run
	handled func(event.Event)
}

// New creates the modem module and subscribes it to the bus
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
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}

	log := o.Log.WithField("module", Name)

	m := &Module{
		bus:      o.Bus,
		registry: o.Registry,
		driver:   o.Driver,
		time:     o.Time,
		clock:    o.Clock,
		log:      log,
		opts:     o,
		queue:    module.NewQueue[msg](Name, o.QueueSize, log, o.Metrics),
		stop:     make(chan struct{}),
	}

	m.poll = module.NewTimer(o.Clock, func() {
		m.queue.Enqueue(msg{poll: true})
	})

	o.Bus.Subscribe(Name, bus.Normal, func(_ bus.Publisher, ev event.Event) {
		m.queue.Enqueue(msg{ev: ev})
	}, event.SourceApp, event.SourceUtil)

	return m
}

// Run the module main loop. Blocks until Stop is called.
func (m *Module) Run() error {
	m.registry.Start(Name)

	for {
		mg, ok := m.queue.Dequeue(m.stop)
		if !ok {
			m.poll.Stop()
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

func (m *Module) handle(mg msg) {
	if m.state == stateShuttingDown {
		m.log.Debug("No action allowed in LTE_STATE_SHUTTING_DOWN")
		return
	}

	if mg.poll {
		m.pollStatus()
		return
	}

	switch e := mg.ev.(type) {
	case event.AppStart:
		m.start()
	case event.AppDataGet:
		m.dataGet(e)
	case event.UtilShutdownRequest:
		m.shutdown()
	}
}

func (m *Module) fail(err error) {
	m.log.WithError(err).Error("Modem error")
	m.bus.Publish(event.Error{From: event.SourceModem, Err: err})
}

func (m *Module) start() {
	m.setState(stateDisconnected)

	if err := m.driver.Init(); err != nil {
		m.fail(err)
		return
	}

	if err := m.driver.Connect(); err != nil {
		m.fail(err)
		return
	}

	m.setState(stateConnecting)
	m.bus.Publish(event.ModemLteConnecting{})
	m.poll.Start(0, m.opts.PollInterval)
}

func (m *Module) pollStatus() {
	st, err := m.driver.Status()
	if err != nil {
		m.log.WithError(err).Warn("Error reading network registration")
		return
	}

	if st.Reg == RegUICCFail {
		if !m.uiccReported {
			m.uiccReported = true
			m.fail(ErrNoSIM)
		}
		return
	}

	if st.Registered() {
		if m.state != stateConnected {
			m.log.Infof("Network registration status: %v", st.Reg)
			m.setState(stateConnected)
			m.bus.Publish(event.ModemLteConnected{})
		}
		if st.Cell != m.cell {
			m.cell = st.Cell
			m.bus.Publish(event.ModemCellUpdate{Cell: st.Cell})
		}
		return
	}

	if m.state == stateConnected {
		m.log.Infof("Network registration lost: %v", st.Reg)
		m.setState(stateConnecting)
		m.cell = data.Cell{}
		m.bus.Publish(event.ModemLteDisconnected{})
	}
}

func (m *Module) dataGet(e event.AppDataGet) {
	if e.Has(data.KindModem) {
		s, err := m.driver.Sample()
		if err != nil {
			m.fail(err)
		} else {
			m.checkFirmware(s.Firmware)
			s.AppVersion = m.opts.AppVersion
			s.Board = m.opts.Board
			s.Time = m.time.Now()
			s.Queued = true
			m.bus.Publish(event.ModemDataReady{Modem: s})
		}
	}

	if e.Has(data.KindBattery) {
		b, err := m.driver.Battery()
		if err != nil {
			m.fail(err)
		} else {
			b.Time = m.time.Now()
			b.Queued = true
			m.bus.Publish(event.ModemBatteryReady{Battery: b})
		}
	}
}

func (m *Module) checkFirmware(fw string) {
	if m.firmwareChecked || m.opts.ExpectedFirmware == "" {
		return
	}
	m.firmwareChecked = true

	if fw != m.opts.ExpectedFirmware {
		m.log.Warnf("Unsupported modem firmware version: %v", fw)
		m.log.Warnf("Expected firmware version: %v", m.opts.ExpectedFirmware)
		return
	}
	m.log.Debugf("Running expected modem firmware version: %v", fw)
}

func (m *Module) shutdown() {
	m.poll.Stop()

	if err := m.driver.PowerOff(); err != nil {
		m.log.WithError(err).Warn("Error powering off modem")
	}

	m.setState(stateShuttingDown)

	if !m.shutdownSent {
		m.shutdownSent = true
		m.bus.Publish(event.ShutdownReady{From: event.SourceModem})
	}
}
