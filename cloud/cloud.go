// Package cloud is the cloud connection module. It connects the transport
// once LTE is up, retries with an increasing backoff, forwards encoded
// payloads while connected, and turns transport notifications into bus
// events.
package cloud

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/bus"
	"github.com/simpleiot/assettracker/codec"
	"github.com/simpleiot/assettracker/data"
	"github.com/simpleiot/assettracker/event"
	"github.com/simpleiot/assettracker/gps"
	"github.com/simpleiot/assettracker/metrics"
	"github.com/simpleiot/assettracker/module"
	"github.com/simpleiot/assettracker/transport"
)

// Name of the module
const Name = "cloud"

// DefaultMaxRetries is the number of connect attempts after the first one
// before the module gives up and reports an error.
const DefaultMaxRetries = 10

// ErrTooManyRetries is reported when the cloud could not be reached
var ErrTooManyRetries = errors.New("too many failed cloud connection attempts")

// backoff delays in seconds, indexed by retry count
var backoffTable = []int{
	32, 64, 128, 256, 512, 2048, 4096, 8192, 16384, 32768,
	65536, 131072, 262144, 524288, 1048576,
}

// Backoff returns the connect-check delay for a retry count. Counts past
// the end of the table use the last entry.
func Backoff(retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}
	if retries >= len(backoffTable) {
		retries = len(backoffTable) - 1
	}
	return time.Duration(backoffTable[retries]) * time.Second
}

// Options for New. Bus, Registry, Transport and Codec are required.
type Options struct {
	Bus        *bus.Bus
	Registry   *module.Registry
	Transport  transport.Transport
	Codec      codec.Codec
	Assister   gps.Assister
	Clock      clock.Clock
	Log        *logrus.Entry
	Metrics    *metrics.Metrics
	MaxRetries int
	QueueSize  int
}

type state int

const (
	stateLteDisconnected state = iota
	stateLteConnected
)

func (s state) String() string {
	switch s {
	case stateLteDisconnected:
		return "CLOUD_STATE_LTE_DISCONNECTED"
	case stateLteConnected:
		return "CLOUD_STATE_LTE_CONNECTED"
	default:
		return "Unknown state"
	}
}

type subState int

const (
	subStateCloudDisconnected subState = iota
	subStateCloudConnected
)

func (s subState) String() string {
	switch s {
	case subStateCloudDisconnected:
		return "CLOUD_SUB_STATE_CLOUD_DISCONNECTED"
	case subStateCloudConnected:
		return "CLOUD_SUB_STATE_CLOUD_CONNECTED"
	default:
		return "Unknown sub state"
	}
}

// Module is the cloud module
type Module struct {
	bus        *bus.Bus
	registry   *module.Registry
	transport  transport.Transport
	codec      codec.Codec
	assister   gps.Assister
	log        *logrus.Entry
	metrics    *metrics.Metrics
	maxRetries int

	queue *module.Queue[event.Event]
	stop  chan struct{}
	check *module.Timer

	state        state
	subState     subState
	retries      int
	shutdownSent bool

	// called after every event, set by tests before Run
	handled func(event.Event)

	// transport callbacks decode against the config on their own
	// goroutine
	cfgLock sync.Mutex
	cfg     data.Config
}

// New creates the cloud module, subscribes it to the bus and installs the
// transport handler.
func New(o Options) *Module {
	if o.Log == nil {
		o.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}

	log := o.Log.WithField("module", Name)

	m := &Module{
		bus:        o.Bus,
		registry:   o.Registry,
		transport:  o.Transport,
		codec:      o.Codec,
		assister:   o.Assister,
		log:        log,
		metrics:    o.Metrics,
		maxRetries: o.MaxRetries,
		queue:      module.NewQueue[event.Event](Name, o.QueueSize, log, o.Metrics),
		stop:       make(chan struct{}),
		cfg:        data.DefaultConfig(),
	}

	m.check = module.NewTimer(o.Clock, func() {
		m.bus.Publish(event.CloudConnectionTimeout{})
	})

	o.Bus.Subscribe(Name, bus.Normal, func(_ bus.Publisher, ev event.Event) {
		m.queue.Enqueue(ev)
	}, event.SourceApp, event.SourceData, event.SourceModem,
		event.SourceCloud, event.SourceUtil, event.SourceGPS)

	o.Transport.SetHandler(m.transportEvent)

	return m
}

// Run the module main loop. Blocks until Stop is called.
func (m *Module) Run() error {
	m.registry.Start(Name)
	m.setState(stateLteDisconnected)
	m.setSubState(subStateCloudDisconnected)

	for {
		ev, ok := m.queue.Dequeue(m.stop)
		if !ok {
			m.check.Stop()
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
	case stateLteConnected:
		switch m.subState {
		case subStateCloudConnected:
			m.onCloudConnected(ev)
		case subStateCloudDisconnected:
			m.onCloudDisconnected(ev)
		}
		m.onLteConnected(ev)
	case stateLteDisconnected:
		m.onLteDisconnected(ev)
	}

	m.onAllStates(ev)
}

func (m *Module) onLteDisconnected(ev event.Event) {
	if _, ok := ev.(event.ModemLteConnected); ok {
		m.setState(stateLteConnected)
		m.connect()
	}
}

func (m *Module) onLteConnected(ev event.Event) {
	if _, ok := ev.(event.ModemLteDisconnected); ok {
		m.setState(stateLteDisconnected)
		m.setSubState(subStateCloudDisconnected)
		m.retries = 0
		m.check.Stop()
		if err := m.transport.Disconnect(); err != nil {
			m.log.Warnf("Disconnect failed: %v", err)
		}
	}
}

func (m *Module) onCloudDisconnected(ev event.Event) {
	switch ev.(type) {
	case event.CloudConnected:
		m.setSubState(subStateCloudConnected)
		m.retries = 0
		m.check.Stop()
	case event.CloudConnectionTimeout:
		m.connect()
	case event.GPSAgpsNeeded:
		m.log.Debug("Cloud not connected, A-GPS request skipped")
	}
}

func (m *Module) onCloudConnected(ev event.Event) {
	switch e := ev.(type) {
	case event.CloudDisconnected:
		m.setSubState(subStateCloudDisconnected)
		m.check.Start(0, 0)
	case event.GPSAgpsNeeded:
		m.agpsRequest(e.Request)
	case event.DataSend:
		m.send(transport.EndpointState, e.Handle, e.Payload)
	case event.DataConfigSend:
		m.send(transport.EndpointState, e.Handle, e.Payload)
	case event.DataConfigGet:
		err := m.transport.Send(transport.EndpointStateGet, nil)
		m.metrics.Sent(transport.EndpointStateGet.String(), err)
		if err != nil {
			m.log.Errorf("Requesting configuration failed: %v", err)
		}
	case event.DataSendBatch:
		m.send(transport.EndpointBatch, e.Handle, e.Payload)
	case event.DataUISend:
		m.send(transport.EndpointUI, e.Handle, e.Payload)
	}
}

func (m *Module) onAllStates(ev event.Event) {
	switch e := ev.(type) {
	case event.UtilShutdownRequest:
		m.check.Stop()
		if err := m.transport.Disconnect(); err != nil {
			m.log.Warnf("Disconnect failed: %v", err)
		}
		if !m.shutdownSent {
			m.shutdownSent = true
			m.bus.Publish(event.ShutdownReady{From: event.SourceCloud})
		}
	case event.DataConfigInit:
		m.setConfig(e.Config)
	case event.DataConfigReady:
		m.setConfig(e.Config)
	}
}

func (m *Module) setConfig(c data.Config) {
	m.cfgLock.Lock()
	defer m.cfgLock.Unlock()
	m.cfg = c
}

func (m *Module) config() data.Config {
	m.cfgLock.Lock()
	defer m.cfgLock.Unlock()
	return m.cfg
}

func (m *Module) connect() {
	backoff := Backoff(m.retries)

	m.log.Debug("Connecting to cloud")

	if m.retries > m.maxRetries {
		m.log.Warn("Too many failed cloud connection attempts")
		m.bus.Publish(event.Error{From: event.SourceCloud, Err: ErrTooManyRetries})
		return
	}

	m.retries++
	m.check.Start(backoff, 0)

	// the transport may refuse while a previous attempt is still in
	// flight, the connect check covers that case
	if err := m.transport.Connect(); err != nil {
		m.log.Errorf("Cloud connect failed, error: %v", err)
	}
	m.metrics.Connecting()

	m.log.Warnf("Cloud connection establishment in progress, new attempt in %v if not successful",
		backoff)
}

func (m *Module) send(ep transport.Endpoint, h data.Handle, payload []byte) {
	err := m.transport.Send(ep, payload)
	m.metrics.Sent(ep.String(), err)
	if err != nil {
		m.log.Errorf("Sending %v data failed: %v", ep, err)
	}

	// the payload is released whether or not the send worked, a failed
	// send is not retried
	if len(payload) > 0 {
		m.bus.Publish(event.CloudDataAck{Handle: h})
	}
}

func (m *Module) agpsRequest(r data.AGPSRequest) {
	payload, err := m.codec.EncodeAGPSRequest(r)
	if err != nil {
		m.log.Warnf("Failed to encode A-GPS request, error: %v", err)
		return
	}

	err = m.transport.Send(transport.EndpointAGPS, payload)
	m.metrics.Sent(transport.EndpointAGPS.String(), err)
	if err != nil {
		m.log.Warnf("Failed to request A-GPS data, error: %v", err)
	}
}

// transportEvent runs on the transport goroutine
func (m *Module) transportEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventConnecting:
		m.log.Debug("Transport connecting")
		m.bus.Publish(event.CloudConnecting{})
	case transport.EventConnected:
		m.log.Debug("Transport connected")
		m.bus.Publish(event.CloudConnected{})
	case transport.EventDisconnected:
		m.log.Debug("Transport disconnected")
		m.bus.Publish(event.CloudDisconnected{})
	case transport.EventDataReceived:
		m.dataReceived(ev.Payload)
	case transport.EventFotaDone:
		m.log.Infof("Firmware update %v downloaded", ev.Version)
		m.bus.Publish(event.CloudFotaDone{Version: ev.Version})
	case transport.EventFotaStart, transport.EventFotaErasePending,
		transport.EventFotaEraseDone:
		m.log.Debugf("Firmware update %v: %v", ev.Version, ev.Type)
	case transport.EventError:
		m.log.Errorf("Transport error: %v", ev.Err)
		m.bus.Publish(event.Error{From: event.SourceCloud, Err: ev.Err})
	}
}

// dataReceived sorts inbound payloads. Configuration documents and A-GPS
// data share the inbound channel; anything that does not decode as a
// configuration is handed to the GPS receiver.
func (m *Module) dataReceived(payload []byte) {
	cfg, err := m.codec.DecodeConfig(payload, m.config())
	switch {
	case err == nil:
		m.log.Debug("Device configuration decoded")
		m.bus.Publish(event.CloudConfigReceived{Config: cfg})
		return
	case errors.Is(err, codec.ErrNoData):
		m.log.Debug("Payload holds no device configuration")
	default:
		m.log.Errorf("Decoding of device configuration, error: %v", err)
		m.bus.Publish(event.Error{From: event.SourceCloud, Err: err})
		return
	}

	if m.assister == nil {
		m.log.Warn("No A-GPS receiver, payload dropped")
		return
	}

	if err := m.assister.InjectAGPS(payload); err != nil {
		m.log.Warnf("Unable to process agps data, error: %v", err)
	}
}
