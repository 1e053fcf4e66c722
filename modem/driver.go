package modem

import (
	"github.com/simpleiot/assettracker/data"
)

// Registration is the EPS network registration status reported by +CEREG
type Registration int

// registration states
const (
	RegNotRegistered Registration = 0
	RegHome          Registration = 1
	RegSearching     Registration = 2
	RegDenied        Registration = 3
	RegUnknown       Registration = 4
	RegRoaming       Registration = 5
	RegUICCFail      Registration = 90
)

func (r Registration) String() string {
	switch r {
	case RegNotRegistered:
		return "not registered"
	case RegHome:
		return "home"
	case RegSearching:
		return "searching"
	case RegDenied:
		return "denied"
	case RegUnknown:
		return "unknown"
	case RegRoaming:
		return "roaming"
	case RegUICCFail:
		return "UICC failure"
	default:
		return "invalid"
	}
}

// Status is the registration and serving cell
type Status struct {
	Reg  Registration
	Cell data.Cell
	// access technology, 7 is LTE-M, 9 is NB-IoT
	AcT int
}

// Registered reports home or roaming registration
func (s Status) Registered() bool {
	return s.Reg == RegHome || s.Reg == RegRoaming
}

// Mode returns the network mode name
func (s Status) Mode() string {
	switch s.AcT {
	case 7:
		return "LTE-M"
	case 9:
		return "NB-IoT"
	default:
		return ""
	}
}

// Driver is an LTE modem. Calls are made from the modem module goroutine
// only.
type Driver interface {
	Init() error
	Connect() error
	Status() (Status, error)
	Sample() (data.Modem, error)
	Battery() (data.Battery, error)
	PowerOff() error
}
