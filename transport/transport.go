// Package transport connects the tracker to its cloud. Connection outcome
// and inbound data are reported asynchronously through the handler set
// with SetHandler; the cloud module turns them into bus events.
package transport

import (
	"fmt"
	"strings"
)

// EventType enumerates transport notifications
type EventType int

// transport notifications
const (
	EventConnecting EventType = iota
	EventConnected
	EventDisconnected
	EventDataReceived
	EventFotaStart
	EventFotaErasePending
	EventFotaEraseDone
	EventFotaDone
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventDataReceived:
		return "data received"
	case EventFotaStart:
		return "fota start"
	case EventFotaErasePending:
		return "fota erase pending"
	case EventFotaEraseDone:
		return "fota erase done"
	case EventFotaDone:
		return "fota done"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a transport notification
type Event struct {
	Type    EventType
	Payload []byte
	Version string
	Err     error
}

// Endpoint selects where a payload is sent
type Endpoint int

// endpoints
const (
	EndpointState Endpoint = iota
	EndpointStateGet
	EndpointMessage
	EndpointBatch
	EndpointUI
	EndpointAGPS
)

func (e Endpoint) String() string {
	switch e {
	case EndpointState:
		return "state"
	case EndpointStateGet:
		return "state_get"
	case EndpointMessage:
		return "message"
	case EndpointBatch:
		return "batch"
	case EndpointUI:
		return "ui"
	case EndpointAGPS:
		return "agps"
	default:
		return fmt.Sprintf("endpoint(%d)", int(e))
	}
}

// Transport is a cloud connection. Connect starts a connection attempt and
// returns; the result is reported through the handler.
type Transport interface {
	Connect() error
	Disconnect() error
	Send(ep Endpoint, payload []byte) error
	SetHandler(func(Event))
}

// Topics is the topic layout shared by the transports
type Topics struct {
	State       string
	StateGet    string
	Message     string
	Batch       string
	AGPSRequest string

	Delta       string
	GetAccepted string
	AGPSData    string
	Fota        string
}

// checkTopicParts rejects a prefix or device that would produce an empty
// or wildcard topic level.
func checkTopicParts(prefix, device string) error {
	for name, v := range map[string]string{"prefix": prefix, "device": device} {
		if v == "" {
			return fmt.Errorf("topic %v is empty", name)
		}
		if strings.ContainsAny(v, "/.*>+# \t") {
			return fmt.Errorf("topic %v %q contains a separator or wildcard", name, v)
		}
	}
	return nil
}

// NewTopics builds the topic layout for a device. sep is "/" for MQTT and
// "." for NATS.
func NewTopics(prefix, device, sep string) Topics {
	base := prefix + sep + device + sep
	t := func(parts ...string) string {
		return base + strings.Join(parts, sep)
	}
	return Topics{
		State:       t("shadow", "update"),
		StateGet:    t("shadow", "get"),
		Message:     t("messages"),
		Batch:       t("batch"),
		AGPSRequest: t("agps", "get"),
		Delta:       t("shadow", "update", "delta"),
		GetAccepted: t("shadow", "get", "accepted"),
		AGPSData:    t("agps"),
		Fota:        t("fota"),
	}
}

// Out returns the topic for an endpoint
func (t Topics) Out(ep Endpoint) (string, error) {
	switch ep {
	case EndpointState:
		return t.State, nil
	case EndpointStateGet:
		return t.StateGet, nil
	case EndpointMessage, EndpointUI:
		return t.Message, nil
	case EndpointBatch:
		return t.Batch, nil
	case EndpointAGPS:
		return t.AGPSRequest, nil
	default:
		return "", fmt.Errorf("unknown endpoint: %v", ep)
	}
}

// In returns the inbound data topics
func (t Topics) In() []string {
	return []string{t.Delta, t.GetAccepted, t.AGPSData}
}
