package sensors_test

import (
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/simpleiot/assettracker/sensors"
)

func TestHost(t *testing.T) {
	temps := []host.TemperatureStat{
		{SensorKey: "acpitz", Temperature: 41},
		{SensorKey: "coretemp_core_0", Temperature: 55},
	}

	tests := []struct {
		name  string
		key   string
		temps []host.TemperatureStat
		err   error
		exp   float64
		expE  error
	}{
		{"first", "", temps, nil, 41, nil},
		{"by key", "coretemp", temps, nil, 55, nil},
		{"unknown key", "nvme", temps, nil, 0, sensors.ErrNotSupported},
		{"no sensors", "", nil, nil, 0, sensors.ErrNotSupported},
		{"partial", "", temps[1:], errors.New("warning"), 55, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := sensors.NewHostFrom(tc.key, func() ([]host.TemperatureStat, error) {
				return tc.temps, tc.err
			})
			env, err := h.Env()
			if !errors.Is(err, tc.expE) {
				t.Fatal("error: ", err)
			}
			if env.Temp != tc.exp {
				t.Error("temp: ", env.Temp)
			}
		})
	}

	h := sensors.NewHostFrom("", func() ([]host.TemperatureStat, error) {
		return nil, errors.New("no hwmon")
	})
	if _, err := h.Env(); err == nil || errors.Is(err, sensors.ErrNotSupported) {
		t.Error("expected read error, got: ", err)
	}
}
