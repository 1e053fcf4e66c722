package sensors

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/simpleiot/assettracker/data"
)

// Host reads the temperature sensors of the machine the tracker runs on.
// There is no humidity sensor, Hum is always 0.
type Host struct {
	// Key selects a sensor by its key prefix, empty uses the first one
	Key string

	temps func() ([]host.TemperatureStat, error)
}

// NewHost creates a host temperature driver
func NewHost(key string) *Host {
	return &Host{Key: key, temps: host.SensorsTemperatures}
}

// Env implements EnvSensor
func (h *Host) Env() (data.Env, error) {
	temps, err := h.temps()
	// gopsutil returns partial results with a warning error
	if err != nil && len(temps) == 0 {
		return data.Env{}, errors.Wrap(err, "error reading sensors")
	}

	for _, t := range temps {
		if h.Key == "" || strings.HasPrefix(t.SensorKey, h.Key) {
			return data.Env{Temp: t.Temperature}, nil
		}
	}

	return data.Env{}, ErrNotSupported
}
