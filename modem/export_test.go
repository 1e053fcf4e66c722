package modem

import "github.com/simpleiot/assettracker/event"

// OnHandled registers fn to be called after the main loop handled a
// message. Must be called before Run.
func (m *Module) OnHandled(fn func(event.Event)) {
	m.handled = fn
}
