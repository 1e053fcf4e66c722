// Package codec turns buffered tracker data into cloud payloads and decodes
// configuration documents sent by the cloud.
//
// ErrNoData is a normal outcome: there was nothing to encode, or the
// payload is not a configuration document. Callers log it and carry on.
// Any other error is a real failure.
package codec

import (
	"errors"

	"github.com/simpleiot/assettracker/data"
)

// ErrNoData is returned when there is nothing to encode or decode
var ErrNoData = errors.New("no data")

// Single holds the newest entry of each kind. Nil fields are left out.
type Single struct {
	GPS     *data.GPS
	Env     *data.Env
	Modem   *data.Modem
	UI      *data.UI
	Accel   *data.Accel
	Battery *data.Battery
}

// Empty reports whether s holds nothing
func (s Single) Empty() bool {
	return s.GPS == nil && s.Env == nil && s.Modem == nil &&
		s.UI == nil && s.Accel == nil && s.Battery == nil
}

// Batch holds every queued entry of each kind, oldest first
type Batch struct {
	GPS     []data.GPS
	Env     []data.Env
	Modem   []data.Modem
	UI      []data.UI
	Accel   []data.Accel
	Battery []data.Battery
}

// Empty reports whether b holds nothing
func (b Batch) Empty() bool {
	return len(b.GPS) == 0 && len(b.Env) == 0 && len(b.Modem) == 0 &&
		len(b.UI) == 0 && len(b.Accel) == 0 && len(b.Battery) == 0
}

// Codec is the cloud wire format
type Codec interface {
	EncodeSingle(Single) ([]byte, error)
	EncodeBatch(Batch) ([]byte, error)
	EncodeUI(data.UI) ([]byte, error)
	EncodeConfig(data.Config) ([]byte, error)
	// DecodeConfig decodes a configuration document on top of base.
	// Fields missing from the document keep their base value.
	DecodeConfig(payload []byte, base data.Config) (data.Config, error)
	EncodeAGPSRequest(data.AGPSRequest) ([]byte, error)
}

// New returns a codec by name: "json" or "proto"
func New(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "proto", "protobuf":
		return Proto{}, nil
	default:
		return nil, errors.New("unknown codec: " + name)
	}
}
