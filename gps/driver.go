package gps

import (
	"fmt"

	"github.com/simpleiot/assettracker/data"
)

// EventType enumerates driver notifications
type EventType int

// driver notifications
const (
	EventFix EventType = iota
	EventAGPSNeeded
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventFix:
		return "fix"
	case EventAGPSNeeded:
		return "agps needed"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a driver notification
type Event struct {
	Type EventType
	Fix  data.GPS
	AGPS data.AGPSRequest
	Err  error
}

// Driver is a GPS receiver. Init is called once with the handler that
// receives notifications from the driver goroutine. Fixes are only
// reported between Start and Stop.
type Driver interface {
	Init(handler func(Event)) error
	Start() error
	Stop() error
}

// Assister accepts assistance data downloaded from the cloud
type Assister interface {
	InjectAGPS(payload []byte) error
}
