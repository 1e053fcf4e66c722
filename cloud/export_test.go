package cloud

import "github.com/simpleiot/assettracker/event"

// OnHandled registers fn to be called after the main loop handled an
// event. Must be called before Run.
func (m *Module) OnHandled(fn func(event.Event)) {
	m.handled = fn
}
