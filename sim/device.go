package sim

import (
	"github.com/benbjohnson/clock"
)

// Device bundles the simulated drivers of one tracker
type Device struct {
	GPS    *GPS
	Modem  *Modem
	Env    *Env
	Motion *Motion
}

// NewDevice creates simulated drivers for a tracker near lat, lon
func NewDevice(c clock.Clock, lat, lon float64) *Device {
	return &Device{
		GPS:    NewGPS(c, lat, lon),
		Modem:  NewModem(c),
		Env:    NewEnv(),
		Motion: NewMotion(c),
	}
}
