package bus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/event"
)

// MirrorMsg is the JSON document the mirror publishes for every event
type MirrorMsg struct {
	Source string          `json:"source"`
	Kind   string          `json:"kind"`
	Time   time.Time       `json:"time"`
	Event  json.RawMessage `json:"event"`
}

// MirrorSubject returns the subject events of a source are mirrored to
func MirrorSubject(device string, s event.Source) string {
	return "tracker." + device + ".events." + s.String()
}

// MirrorWildcard matches every mirrored event of a device
func MirrorWildcard(device string) string {
	return "tracker." + device + ".events.>"
}

// Mirror copies every bus event to NATS so a running device can be watched
// with `tracker log`.
type Mirror struct {
	nc     *nats.Conn
	device string
	log    *logrus.Entry
}

// NewMirror subscribes a mirror as final subscriber on all sources
func NewMirror(b *Bus, nc *nats.Conn, device string, log *logrus.Entry) *Mirror {
	m := &Mirror{nc: nc, device: device, log: log}
	b.Subscribe("mirror", Final, m.handle, event.Sources...)
	return m
}

func (m *Mirror) handle(_ Publisher, ev event.Event) {
	evJSON, err := json.Marshal(ev)
	if err != nil {
		m.log.Errorf("Error encoding %v: %v", event.Name(ev), err)
		return
	}

	msg, err := json.Marshal(MirrorMsg{
		Source: ev.Source().String(),
		Kind:   ev.Kind(),
		Time:   time.Now(),
		Event:  evJSON,
	})
	if err != nil {
		m.log.Errorf("Error encoding mirror msg: %v", err)
		return
	}

	// nats publish only buffers, it does not wait on the network
	err = m.nc.Publish(MirrorSubject(m.device, ev.Source()), msg)
	if err != nil {
		m.log.Debugf("Mirror publish error: %v", err)
	}
}
