package transport

import (
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSOptions configures the NATS transport
type NATSOptions struct {
	URI        string
	AuthToken  string
	Prefix     string
	Device     string
	AppVersion string
	Timeout    time.Duration
}

// NATS is a transport over a NATS server. The nats client's own reconnect
// logic is disabled so connection loss is reported to the cloud module.
type NATS struct {
	opts   NATSOptions
	topics Topics
	fota   *Fota
	log    *logrus.Entry

	lock    sync.Mutex
	nc      *nats.Conn
	subs    []*nats.Subscription
	handler func(Event)
}

// NewNATS creates a NATS transport. No connection is made until Connect.
func NewNATS(o NATSOptions, log *logrus.Entry) (*NATS, error) {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}

	if err := checkTopicParts(o.Prefix, o.Device); err != nil {
		return nil, err
	}

	fota, err := NewFota(o.AppVersion)
	if err != nil {
		return nil, err
	}

	return &NATS{
		opts:   o,
		topics: NewTopics(o.Prefix, o.Device, "."),
		fota:   fota,
		log:    log,
	}, nil
}

// SetHandler implements Transport
func (n *NATS) SetHandler(h func(Event)) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.handler = h
}

func (n *NATS) emit(ev Event) {
	n.lock.Lock()
	h := n.handler
	n.lock.Unlock()
	if h != nil {
		h(ev)
	}
}

func sanitizeURI(uri string) string {
	// nats URIs do not carry a path, and users often paste one
	if i := strings.Index(uri, "://"); i >= 0 {
		rest := uri[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			return uri[:i+3] + rest[:j]
		}
	}
	return uri
}

// Connect implements Transport
func (n *NATS) Connect() error {
	n.lock.Lock()
	if n.nc != nil {
		n.lock.Unlock()
		return errors.New("already connected")
	}
	n.lock.Unlock()

	n.emit(Event{Type: EventConnecting})

	natsErrHandler := func(_ *nats.Conn, sub *nats.Subscription, natsErr error) {
		if errors.Is(natsErr, nats.ErrSlowConsumer) && sub != nil {
			pendingMsgs, _, err := sub.Pending()
			if err != nil {
				n.log.Warnf("couldn't get pending messages: %v", err)
				return
			}
			n.log.Warnf("Falling behind with %d pending messages on subject %q",
				pendingMsgs, sub.Subject)
			return
		}
		n.log.Errorf("NATS client error: %v", natsErr)
	}

	trackerOptions := func(o *nats.Options) error {
		nats.Timeout(n.opts.Timeout)(o)
		nats.DrainTimeout(n.opts.Timeout)(o)
		nats.PingInterval(2 * time.Minute)(o)
		nats.MaxPingsOutstanding(3)(o)
		nats.NoReconnect()(o)
		nats.SetCustomDialer(&net.Dialer{
			KeepAlive: -1,
		})(o)
		if n.opts.AuthToken != "" {
			nats.Token(n.opts.AuthToken)(o)
		}
		nats.ErrorHandler(natsErrHandler)(o)
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.log.Warnf("NATS disconnected: %v", err)
			n.drop()
			n.emit(Event{Type: EventDisconnected})
		})(o)
		return nil
	}

	uri := sanitizeURI(n.opts.URI)

	go func() {
		n.log.Infof("NATS connecting to %v", uri)
		nc, err := nats.Connect(uri, trackerOptions)
		if err != nil {
			n.log.Warnf("NATS connect failed: %v", err)
			n.emit(Event{Type: EventDisconnected})
			return
		}

		var subs []*nats.Subscription
		for _, subject := range n.topics.In() {
			sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
				n.emit(Event{Type: EventDataReceived, Payload: m.Data})
			})
			if err != nil {
				nc.Close()
				n.emit(Event{Type: EventError, Err: err})
				return
			}
			subs = append(subs, sub)
		}

		sub, err := nc.Subscribe(n.topics.Fota, func(m *nats.Msg) {
			ev, err := n.fota.Parse(m.Data)
			if err != nil {
				n.log.Warnf("Ignoring fota message: %v", err)
				return
			}
			n.emit(ev)
		})
		if err != nil {
			nc.Close()
			n.emit(Event{Type: EventError, Err: err})
			return
		}
		subs = append(subs, sub)

		n.lock.Lock()
		n.nc = nc
		n.subs = subs
		n.lock.Unlock()

		n.log.Info("NATS connected")
		n.emit(Event{Type: EventConnected})
	}()

	return nil
}

func (n *NATS) drop() *nats.Conn {
	n.lock.Lock()
	defer n.lock.Unlock()
	nc := n.nc
	n.nc = nil
	n.subs = nil
	return nc
}

// Disconnect implements Transport
func (n *NATS) Disconnect() error {
	nc := n.drop()
	if nc == nil {
		return nil
	}
	// Close does not call the disconnect handler when the connection is
	// already dropped from the transport
	nc.SetDisconnectErrHandler(nil)
	nc.Close()
	return nil
}

// Send implements Transport
func (n *NATS) Send(ep Endpoint, payload []byte) error {
	subject, err := n.topics.Out(ep)
	if err != nil {
		return err
	}

	n.lock.Lock()
	nc := n.nc
	n.lock.Unlock()

	if nc == nil {
		return errors.New("not connected")
	}

	if err := nc.Publish(subject, payload); err != nil {
		return err
	}

	return nc.FlushTimeout(n.opts.Timeout)
}
