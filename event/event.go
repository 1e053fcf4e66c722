// Package event defines every message that travels on the tracker event bus.
//
// Each event kind is its own struct type so the payload shape of a kind is
// fixed at compile time. Consumers switch on the concrete type. The set is
// closed: Event carries an unexported method so only this package can add
// kinds.
package event

import (
	"encoding/json"
	"fmt"
)

// Source identifies the module category an event originates from. Bus
// subscriptions are made per source.
type Source int

// event sources
const (
	SourceApp Source = iota
	SourceData
	SourceCloud
	SourceGPS
	SourceModem
	SourceSensor
	SourceUI
	SourceUtil
	SourceOutput
)

// Sources lists every source, useful for subscribing to everything.
var Sources = []Source{
	SourceApp,
	SourceData,
	SourceCloud,
	SourceGPS,
	SourceModem,
	SourceSensor,
	SourceUI,
	SourceUtil,
	SourceOutput,
}

func (s Source) String() string {
	switch s {
	case SourceApp:
		return "app"
	case SourceData:
		return "data"
	case SourceCloud:
		return "cloud"
	case SourceGPS:
		return "gps"
	case SourceModem:
		return "modem"
	case SourceSensor:
		return "sensor"
	case SourceUI:
		return "ui"
	case SourceUtil:
		return "util"
	case SourceOutput:
		return "output"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Event is an immutable broadcast message.
type Event interface {
	Source() Source
	Kind() string
	sealed()
}

type appEvent struct{}

func (appEvent) Source() Source { return SourceApp }
func (appEvent) sealed()        {}

type dataEvent struct{}

func (dataEvent) Source() Source { return SourceData }
func (dataEvent) sealed()        {}

type cloudEvent struct{}

func (cloudEvent) Source() Source { return SourceCloud }
func (cloudEvent) sealed()        {}

type gpsEvent struct{}

func (gpsEvent) Source() Source { return SourceGPS }
func (gpsEvent) sealed()        {}

type modemEvent struct{}

func (modemEvent) Source() Source { return SourceModem }
func (modemEvent) sealed()        {}

type sensorEvent struct{}

func (sensorEvent) Source() Source { return SourceSensor }
func (sensorEvent) sealed()        {}

type uiEvent struct{}

func (uiEvent) Source() Source { return SourceUI }
func (uiEvent) sealed()        {}

type utilEvent struct{}

func (utilEvent) Source() Source { return SourceUtil }
func (utilEvent) sealed()        {}

// Error is the per-module error variant. From names the failing module and
// is the source the event is published under. Only the supervisor acts on
// it.
type Error struct {
	From Source
	Err  error
}

// Source of the error event
func (e Error) Source() Source { return e.From }

// Kind of event
func (Error) Kind() string { return "error" }
func (Error) sealed()      {}

func (e Error) String() string {
	return fmt.Sprintf("%v error: %v", e.From, e.Err)
}

// MarshalJSON flattens the error to its message.
func (e Error) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		From string `json:"from"`
		Err  string `json:"err"`
	}{e.From.String(), msg})
}

// ShutdownReady is published once by every live module after it handled a
// shutdown request.
type ShutdownReady struct {
	From Source
}

// Source of the acknowledgment
func (e ShutdownReady) Source() Source { return e.From }

// Kind of event
func (ShutdownReady) Kind() string { return "shutdown_ready" }
func (ShutdownReady) sealed()      {}

// Name returns "<source>.<kind>", used for logs and mirror subjects.
func Name(ev Event) string {
	return ev.Source().String() + "." + ev.Kind()
}
