package sensors

import (
	"github.com/shirou/gopsutil/v3/host"

	"github.com/simpleiot/assettracker/event"
)

// OnHandled registers fn to be called after the main loop handled a
// message. fn gets nil for driver notifications. Must be called before Run.
func (m *Module) OnHandled(fn func(event.Event)) {
	m.handled = fn
}

// NewHostFrom creates a host driver reading temperatures from fn
func NewHostFrom(key string, fn func() ([]host.TemperatureStat, error)) *Host {
	return &Host{Key: key, temps: fn}
}
