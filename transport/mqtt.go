package transport

import (
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// MQTTOptions configures the MQTT transport
type MQTTOptions struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Prefix         string
	Device         string
	AppVersion     string
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
}

// MQTT is a transport over an MQTT broker. Automatic reconnect is
// disabled; the cloud module decides when to try again.
type MQTT struct {
	opts   MQTTOptions
	topics Topics
	fota   *Fota
	client paho.Client
	log    *logrus.Entry

	lock    sync.Mutex
	handler func(Event)
}

// NewMQTT creates an MQTT transport. No connection is made until Connect.
func NewMQTT(o MQTTOptions, log *logrus.Entry) (*MQTT, error) {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.SendTimeout == 0 {
		o.SendTimeout = 10 * time.Second
	}

	if err := checkTopicParts(o.Prefix, o.Device); err != nil {
		return nil, err
	}

	fota, err := NewFota(o.AppVersion)
	if err != nil {
		return nil, err
	}

	m := &MQTT{
		opts:   o,
		topics: NewTopics(o.Prefix, o.Device, "/"),
		fota:   fota,
		log:    log,
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(m.onConnectionLost)

	m.client = paho.NewClient(opts)

	return m, nil
}

// SetHandler implements Transport
func (m *MQTT) SetHandler(h func(Event)) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.handler = h
}

func (m *MQTT) emit(ev Event) {
	m.lock.Lock()
	h := m.handler
	m.lock.Unlock()
	if h != nil {
		h(ev)
	}
}

// Connect implements Transport
func (m *MQTT) Connect() error {
	if m.client.IsConnected() {
		return errors.New("already connected")
	}

	m.log.Infof("MQTT connecting to %v", m.opts.Broker)
	m.emit(Event{Type: EventConnecting})

	token := m.client.Connect()
	go func() {
		if !token.WaitTimeout(m.opts.ConnectTimeout + time.Second) {
			m.log.Warn("MQTT connect timeout")
			return
		}
		if err := token.Error(); err != nil {
			m.log.Warnf("MQTT connect failed: %v", err)
			m.emit(Event{Type: EventDisconnected})
		}
	}()

	return nil
}

// Disconnect implements Transport
func (m *MQTT) Disconnect() error {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}

// Send implements Transport
func (m *MQTT) Send(ep Endpoint, payload []byte) error {
	topic, err := m.topics.Out(ep)
	if err != nil {
		return err
	}

	// state get takes no payload
	if ep == EndpointStateGet {
		payload = []byte{}
	}

	token := m.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(m.opts.SendTimeout) {
		return errors.New("mqtt publish timeout")
	}
	return token.Error()
}

func (m *MQTT) onConnect(c paho.Client) {
	m.log.Info("MQTT connected")

	for _, topic := range m.topics.In() {
		token := c.Subscribe(topic, 0, m.onData)
		if token.Wait() && token.Error() != nil {
			m.log.Errorf("MQTT subscribe %v failed: %v", topic, token.Error())
			m.emit(Event{Type: EventError, Err: token.Error()})
			return
		}
	}

	token := c.Subscribe(m.topics.Fota, 0, m.onFota)
	if token.Wait() && token.Error() != nil {
		m.log.Errorf("MQTT subscribe %v failed: %v", m.topics.Fota, token.Error())
		m.emit(Event{Type: EventError, Err: token.Error()})
		return
	}

	m.emit(Event{Type: EventConnected})
}

func (m *MQTT) onConnectionLost(_ paho.Client, err error) {
	m.log.Warnf("MQTT connection lost: %v", err)
	m.emit(Event{Type: EventDisconnected})
}

func (m *MQTT) onData(_ paho.Client, msg paho.Message) {
	m.emit(Event{Type: EventDataReceived, Payload: msg.Payload()})
}

func (m *MQTT) onFota(_ paho.Client, msg paho.Message) {
	ev, err := m.fota.Parse(msg.Payload())
	if err != nil {
		m.log.Warnf("Ignoring fota message: %v", err)
		return
	}
	m.emit(ev)
}
