package sensors

import (
	"errors"

	"github.com/simpleiot/assettracker/data"
)

// ErrNotSupported is returned by an environmental sensor that has nothing
// to measure on this hardware.
var ErrNotSupported = errors.New("environmental sensor not supported")

// EnvSensor reads temperature and humidity
type EnvSensor interface {
	Env() (data.Env, error)
}

// MotionSensor reports movement above a threshold. The handler is called
// from the driver goroutine.
type MotionSensor interface {
	Start(handler func(data.Accel)) error
	SetThreshold(threshold int) error
}
