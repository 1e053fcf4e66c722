// Package aggregate is the data aggregation module. It buffers producer
// samples into ring buffers, correlates them into sampling cycles requested
// by the app module, encodes what was collected and hands the payloads to
// the cloud module. It also owns the device configuration.
package aggregate

import (
	"encoding/json"
	"errors"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/bus"
	"github.com/simpleiot/assettracker/codec"
	"github.com/simpleiot/assettracker/data"
	"github.com/simpleiot/assettracker/event"
	"github.com/simpleiot/assettracker/metrics"
	"github.com/simpleiot/assettracker/module"
	"github.com/simpleiot/assettracker/store"
)

// Name of the module
const Name = "data"

// ConfigKey is the settings key the configuration is stored under
const ConfigKey = "data_module/config"

// TimeSource tells whether data can be timestamped
type TimeSource interface {
	Valid() bool
	UpdateAsync()
}

// Capacities are the ring buffer sizes
type Capacities struct {
	GPS     int
	Env     int
	Modem   int
	UI      int
	Accel   int
	Battery int
}

// DefaultCapacities returns the ring sizes used when none are configured
func DefaultCapacities() Capacities {
	return Capacities{
		GPS:     10,
		Env:     10,
		Modem:   3,
		UI:      3,
		Accel:   10,
		Battery: 3,
	}
}

// Options for New. Bus, Registry, Codec, Settings and Time are required.
type Options struct {
	Bus             *bus.Bus
	Registry        *module.Registry
	Codec           codec.Codec
	Settings        store.Settings
	Time            TimeSource
	Clock           clock.Clock
	Log             *logrus.Entry
	Metrics         *metrics.Metrics
	Capacities      Capacities
	PendingCapacity int
	QueueSize       int
}

type state int

const (
	stateDisconnected state = iota
	stateConnected
)

func (s state) String() string {
	switch s {
	case stateDisconnected:
		return "STATE_CLOUD_DISCONNECTED"
	case stateConnected:
		return "STATE_CLOUD_CONNECTED"
	default:
		return "Unknown state"
	}
}

// msg is what the module queue carries. Exactly one field is set.
type msg struct {
	ev event.Event
	// deadline of the sampling cycle with this id expired
	deadline uint64
	// the time source became valid
	timeObtained bool
}

// cycle is the correlation state of one sampling cycle
type cycle struct {
	id       uint64
	active   bool
	kinds    []data.Kind
	received map[data.Kind]bool
	deadline *module.Timer
}

// Module is the data aggregation module
type Module struct {
	bus      *bus.Bus
	registry *module.Registry
	codec    codec.Codec
	settings store.Settings
	time     TimeSource
	clock    clock.Clock
	log      *logrus.Entry
	metrics  *metrics.Metrics

	queue *module.Queue[msg]
	stop  chan struct{}

	state  state
	config data.Config

	gps     *data.Ring[data.GPS]
	env     *data.Ring[data.Env]
	modem   *data.Ring[data.Modem]
	ui      *data.Ring[data.UI]
	accel   *data.Ring[data.Accel]
	battery *data.Ring[data.Battery]

	pending *data.Pending
	cycle   cycle

	timeSent     bool
	shutdownSent bool
}

// New creates the aggregation module and subscribes it to the bus
func New(o Options) *Module {
	if o.Log == nil {
		o.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Capacities == (Capacities{}) {
		o.Capacities = DefaultCapacities()
	}

	log := o.Log.WithField("module", Name)

	m := &Module{
		bus:      o.Bus,
		registry: o.Registry,
		codec:    o.Codec,
		settings: o.Settings,
		time:     o.Time,
		clock:    o.Clock,
		log:      log,
		metrics:  o.Metrics,
		queue:    module.NewQueue[msg](Name, o.QueueSize, log, o.Metrics),
		stop:     make(chan struct{}),
		config:   data.DefaultConfig(),
		gps:      data.NewRing[data.GPS](o.Capacities.GPS),
		env:      data.NewRing[data.Env](o.Capacities.Env),
		modem:    data.NewRing[data.Modem](o.Capacities.Modem),
		ui:       data.NewRing[data.UI](o.Capacities.UI),
		accel:    data.NewRing[data.Accel](o.Capacities.Accel),
		battery:  data.NewRing[data.Battery](o.Capacities.Battery),
		pending:  data.NewPending(o.PendingCapacity),
	}

	enqueue := func(_ bus.Publisher, ev event.Event) {
		m.queue.Enqueue(msg{ev: ev})
	}

	// producer and cloud events are queued before anyone else reacts so
	// the samples of a cycle are never behind the cycle close
	o.Bus.Subscribe(Name, bus.Early, enqueue,
		event.SourceModem, event.SourceCloud, event.SourceGPS,
		event.SourceUI, event.SourceSensor)
	o.Bus.Subscribe(Name, bus.Normal, enqueue,
		event.SourceApp, event.SourceUtil, event.SourceData)

	return m
}

// TimeObtained is called by the time source every time the date time is
// set. The first call is reported as DataDateTimeObtained.
func (m *Module) TimeObtained() {
	m.queue.Enqueue(msg{timeObtained: true})
}

// Run the module main loop. Blocks until Stop is called.
func (m *Module) Run() error {
	m.registry.Start(Name)
	m.setState(stateDisconnected)

	if err := m.loadConfig(); err != nil {
		m.log.Errorf("setup, error: %v", err)
		m.bus.Publish(event.Error{From: event.SourceData, Err: err})
	}

	for {
		msg, ok := m.queue.Dequeue(m.stop)
		if !ok {
			if m.cycle.deadline != nil {
				m.cycle.deadline.Stop()
			}
			return nil
		}
		m.handle(msg)
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

func (m *Module) handle(msg msg) {
	switch {
	case msg.timeObtained:
		if !m.timeSent {
			m.timeSent = true
			m.bus.Publish(event.DataDateTimeObtained{})
		}
		return
	case msg.ev == nil:
		m.deadlineExpired(msg.deadline)
		return
	}

	switch m.state {
	case stateDisconnected:
		m.onDisconnected(msg.ev)
	case stateConnected:
		m.onConnected(msg.ev)
	}

	m.onAllStates(msg.ev)
}

func (m *Module) onDisconnected(ev event.Event) {
	if _, ok := ev.(event.CloudConnected); ok {
		m.time.UpdateAsync()
		m.setState(stateConnected)
	}
}

func (m *Module) onConnected(ev event.Event) {
	switch e := ev.(type) {
	case event.DataReady:
		m.dataSend()
	case event.AppConfigGet:
		m.bus.Publish(event.DataConfigGet{})
	case event.AppConfigSend:
		m.configSend()
	case event.DataUIReady:
		m.uiSend()
	case event.CloudDisconnected:
		m.setState(stateDisconnected)
	case event.CloudConfigReceived:
		m.configReceived(e.Config)
	}
}

func (m *Module) onAllStates(ev event.Event) {
	switch e := ev.(type) {
	case event.AppStart:
		m.bus.Publish(event.DataConfigInit{Config: m.config})
	case event.UtilShutdownRequest:
		if !m.shutdownSent {
			m.shutdownSent = true
			m.bus.Publish(event.ShutdownReady{From: event.SourceData})
		}
	case event.AppDataGet:
		m.startCycle(e)
	case event.UIButtonReady:
		m.ui.Push(e.Button)
		m.bus.Publish(event.DataUIReady{})
	case event.ModemDataReady:
		m.modem.Push(e.Modem)
		m.received(data.KindModem, data.KindModemStatic, data.KindModemDynamic)
	case event.ModemBatteryReady:
		m.battery.Push(e.Battery)
		m.received(data.KindBattery)
	case event.SensorEnvReady:
		m.env.Push(e.Env)
		m.received(data.KindEnvironmental)
	case event.SensorEnvNotSupported:
		m.received(data.KindEnvironmental)
	case event.SensorMovementReady:
		m.accel.Push(e.Accel)
	case event.GPSDataReady:
		m.gps.Push(e.Fix)
		m.received(data.KindGNSS)
	case event.GPSTimeout:
		m.received(data.KindGNSS)
	case event.CloudDataAck:
		if !m.pending.Ack(e.Handle) {
			m.log.Warnf("No pending data matches ack %v", e.Handle)
		}
	}
}

func (m *Module) startCycle(e event.AppDataGet) {
	if len(e.Kinds) == 0 || len(e.Kinds) > data.KindCount {
		m.log.Errorf("Invalid data type list length: %v", len(e.Kinds))
		return
	}

	if m.cycle.deadline != nil {
		m.cycle.deadline.Stop()
	}

	id := m.cycle.id + 1
	m.cycle = cycle{
		id:       id,
		active:   true,
		kinds:    append([]data.Kind{}, e.Kinds...),
		received: make(map[data.Kind]bool),
		deadline: module.NewTimer(m.clock, func() {
			m.queue.Enqueue(msg{deadline: id})
		}),
	}

	m.cycle.deadline.Start(e.Timeout, 0)
}

// received marks the requested kinds among ks as delivered and closes the
// cycle once every requested kind was delivered.
func (m *Module) received(ks ...data.Kind) {
	if !m.cycle.active {
		return
	}

	for _, k := range ks {
		for _, r := range m.cycle.kinds {
			if r == k {
				m.cycle.received[k] = true
			}
		}
	}

	for _, r := range m.cycle.kinds {
		if !m.cycle.received[r] {
			return
		}
	}

	m.closeCycle()
}

func (m *Module) deadlineExpired(id uint64) {
	if !m.cycle.active || id != m.cycle.id {
		return
	}

	m.log.Debugf("Sampling deadline expired, %v of %v kinds received",
		len(m.cycle.received), len(m.cycle.kinds))
	m.closeCycle()
}

func (m *Module) closeCycle() {
	m.cycle.active = false
	m.cycle.deadline.Stop()
	m.bus.Publish(event.DataReady{})
}

// track registers an encoded payload as waiting for an ack
func (m *Module) track(payload []byte) data.Handle {
	h, ok := m.pending.Add(payload)
	if !ok {
		m.log.Warn("Pending data registry full, payload is not tracked")
		m.metrics.PendingDrop()
	}
	return h
}

func (m *Module) dataSend() {
	if !m.time.Valid() {
		// data stays in the ring buffers until the time is known
		m.log.Debug("No valid date time, data not sent")
		return
	}

	single := codec.Single{}
	if v, ok := m.gps.Head(); ok {
		single.GPS = &v
	}
	if v, ok := m.env.Head(); ok {
		single.Env = &v
	}
	if v, ok := m.modem.Head(); ok {
		single.Modem = &v
	}
	if v, ok := m.ui.Head(); ok {
		single.UI = &v
	}
	if v, ok := m.accel.Head(); ok {
		single.Accel = &v
	}
	if v, ok := m.battery.Head(); ok {
		single.Battery = &v
	}

	payload, err := m.codec.EncodeSingle(single)
	switch {
	case errors.Is(err, codec.ErrNoData):
		m.log.Warn("No new data to encode")
	case err != nil:
		m.log.Errorf("Error encoding message: %v", err)
		m.bus.Publish(event.Error{From: event.SourceData, Err: err})
		return
	default:
		m.gps.MarkHeadSent()
		m.env.MarkHeadSent()
		m.modem.MarkHeadSent()
		m.ui.MarkHeadSent()
		m.accel.MarkHeadSent()
		m.battery.MarkHeadSent()
		m.bus.Publish(event.DataSend{Handle: m.track(payload), Payload: payload})
	}

	batch := codec.Batch{
		GPS:     m.gps.Queued(),
		Env:     m.env.Queued(),
		Modem:   m.modem.Queued(),
		UI:      m.ui.Queued(),
		Accel:   m.accel.Queued(),
		Battery: m.battery.Queued(),
	}

	payload, err = m.codec.EncodeBatch(batch)
	switch {
	case errors.Is(err, codec.ErrNoData):
		m.log.Debug("No batch data to encode")
	case err != nil:
		m.log.Errorf("Error batch-encoding data: %v", err)
		m.bus.Publish(event.Error{From: event.SourceData, Err: err})
	default:
		m.gps.MarkAllSent()
		m.env.MarkAllSent()
		m.modem.MarkAllSent()
		m.ui.MarkAllSent()
		m.accel.MarkAllSent()
		m.battery.MarkAllSent()
		m.bus.Publish(event.DataSendBatch{Handle: m.track(payload), Payload: payload})
	}
}

func (m *Module) configSend() {
	payload, err := m.codec.EncodeConfig(m.config)
	if err != nil {
		m.log.Errorf("Error encoding configuration: %v", err)
		m.bus.Publish(event.Error{From: event.SourceData, Err: err})
		return
	}

	m.bus.Publish(event.DataConfigSend{Handle: m.track(payload), Payload: payload})
}

func (m *Module) uiSend() {
	if !m.time.Valid() {
		m.log.Debug("No valid date time, button data not sent")
		return
	}

	v, ok := m.ui.Head()
	if !ok {
		return
	}

	payload, err := m.codec.EncodeUI(v)
	switch {
	case errors.Is(err, codec.ErrNoData):
		m.log.Warn("No button data to encode")
	case err != nil:
		m.log.Errorf("Error encoding button data: %v", err)
		m.bus.Publish(event.Error{From: event.SourceData, Err: err})
	default:
		m.ui.MarkHeadSent()
		m.bus.Publish(event.DataUISend{Handle: m.track(payload), Payload: payload})
	}
}

func (m *Module) configReceived(in data.Config) {
	cfg, changes := m.config.Apply(in)
	if len(changes) == 0 {
		m.log.Debug("No change in device configuration")
		return
	}

	for _, c := range changes {
		m.log.Warnf("New %v: %v", c.Field, c.Value)
	}

	m.config = cfg

	if err := m.saveConfig(); err != nil {
		m.log.Warnf("Configuration not stored, error: %v", err)
	}

	m.bus.Publish(event.DataConfigReady{Config: m.config})
}

func (m *Module) loadConfig() error {
	buf, err := m.settings.Load(ConfigKey)
	if errors.Is(err, store.ErrNotFound) {
		m.log.Info("No configuration stored, using defaults")
		return m.saveConfig()
	}
	if err != nil {
		return err
	}

	cfg := data.DefaultConfig()
	if err := json.Unmarshal(buf, &cfg); err != nil {
		m.log.Warnf("Stored configuration is corrupt, using defaults: %v", err)
		return m.saveConfig()
	}

	m.config = cfg
	m.log.Infof("Configuration loaded: %v", m.config)
	return nil
}

func (m *Module) saveConfig() error {
	buf, err := json.Marshal(m.config)
	if err != nil {
		return err
	}
	return m.settings.Save(ConfigKey, buf)
}
