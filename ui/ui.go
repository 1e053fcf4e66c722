// Package ui is the button producer module. It has no queue of its own:
// bus events are handled on the publisher's goroutine and presses are
// published from the button driver's goroutine.
package ui

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/bus"
	"github.com/simpleiot/assettracker/data"
	"github.com/simpleiot/assettracker/event"
	"github.com/simpleiot/assettracker/module"
)

// Name of the module
const Name = "ui"

// Buttons calls handler with the button number, starting at 1, for every
// press.
type Buttons interface {
	Init(handler func(button int)) error
}

// TimeSource timestamps presses, usually the corrected date time
type TimeSource interface {
	Now() time.Time
}

// Options for New. Bus and Registry are required. A nil Buttons starts the
// module without presses. Time defaults to Clock.
type Options struct {
	Bus      *bus.Bus
	Registry *module.Registry
	Buttons  Buttons
	Time     TimeSource
	Clock    clock.Clock
	Log      *logrus.Entry
}

// Module is the UI module
type Module struct {
	bus      *bus.Bus
	registry *module.Registry
	buttons  Buttons
	time     TimeSource
	log      *logrus.Entry

	lock         sync.Mutex
	started      bool
	shutdownSent bool
}

// New creates the UI module and subscribes it to the bus
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

	m := &Module{
		bus:      o.Bus,
		registry: o.Registry,
		buttons:  o.Buttons,
		time:     o.Time,
		log:      o.Log.WithField("module", Name),
	}

	o.Bus.Subscribe(Name, bus.Normal, m.handle, event.SourceApp, event.SourceUtil)

	return m
}

func (m *Module) handle(pub bus.Publisher, ev event.Event) {
	switch ev.(type) {
	case event.AppStart:
		m.lock.Lock()
		if m.started {
			m.lock.Unlock()
			return
		}
		m.started = true
		m.lock.Unlock()

		m.registry.Start(Name)

		if m.buttons == nil {
			return
		}
		if err := m.buttons.Init(m.press); err != nil {
			m.log.WithError(err).Error("Button setup failed")
			pub.Publish(event.Error{From: event.SourceUI, Err: err})
		}

	case event.UtilShutdownRequest:
		m.lock.Lock()
		sent := m.shutdownSent
		m.shutdownSent = true
		m.lock.Unlock()

		if !sent {
			pub.Publish(event.ShutdownReady{From: event.SourceUI})
		}
	}
}

func (m *Module) press(button int) {
	m.log.Debugf("Button %v pressed", button)
	m.bus.Publish(event.UIButtonReady{Button: data.UI{
		Button: button,
		Time:   m.time.Now(),
		Queued: true,
	}})
}
