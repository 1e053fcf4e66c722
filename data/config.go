package data

import (
	"fmt"
	"time"
)

// Config is the device configuration. Durations are whole seconds on the
// wire and in storage.
type Config struct {
	// Active selects the periodic sampling mode, Passive samples on movement.
	Active bool `json:"act" yaml:"act"`
	// ActiveWait is the sample period in active mode.
	ActiveWait int `json:"actw" yaml:"actw"`
	// PassiveWait is the movement resolution in passive mode.
	PassiveWait int `json:"pasw" yaml:"pasw"`
	// MovementTimeout forces a sample in passive mode when no movement
	// was seen.
	MovementTimeout int `json:"movt" yaml:"movt"`
	// MovementThreshold is the accelerometer trigger level.
	MovementThreshold int `json:"acct" yaml:"acct"`
	// GPSTimeout bounds a position search. 0 disables the search.
	GPSTimeout int `json:"gpst" yaml:"gpst"`
}

// DefaultConfig returns the configuration used when nothing is stored.
func DefaultConfig() Config {
	return Config{
		Active:            true,
		ActiveWait:        120,
		PassiveWait:       120,
		MovementTimeout:   3600,
		MovementThreshold: 100,
		GPSTimeout:        60,
	}
}

// ActiveWaitDuration is ActiveWait as a duration
func (c Config) ActiveWaitDuration() time.Duration {
	return time.Duration(c.ActiveWait) * time.Second
}

// PassiveWaitDuration is PassiveWait as a duration
func (c Config) PassiveWaitDuration() time.Duration {
	return time.Duration(c.PassiveWait) * time.Second
}

// MovementTimeoutDuration is MovementTimeout as a duration
func (c Config) MovementTimeoutDuration() time.Duration {
	return time.Duration(c.MovementTimeout) * time.Second
}

// GPSTimeoutDuration is GPSTimeout as a duration
func (c Config) GPSTimeoutDuration() time.Duration {
	return time.Duration(c.GPSTimeout) * time.Second
}

func (c Config) String() string {
	mode := "passive"
	if c.Active {
		mode = "active"
	}
	return fmt.Sprintf("mode:%v actw:%v pasw:%v movt:%v acct:%v gpst:%v",
		mode, c.ActiveWait, c.PassiveWait, c.MovementTimeout,
		c.MovementThreshold, c.GPSTimeout)
}

// ConfigChange describes one field that Apply changed.
type ConfigChange struct {
	Field string
	Value string
}

// Apply merges in into c field by field. Numeric fields equal to 0 in `in`
// leave the current value untouched. The mode flag has no such sentinel.
// The merged config and the list of changed fields are returned.
func (c Config) Apply(in Config) (Config, []ConfigChange) {
	var changes []ConfigChange
	out := c

	if out.Active != in.Active {
		out.Active = in.Active
		mode := "Passive"
		if out.Active {
			mode = "Active"
		}
		changes = append(changes, ConfigChange{"Device mode", mode})
	}

	num := func(field string, cur *int, v int) {
		if v != 0 && *cur != v {
			*cur = v
			changes = append(changes, ConfigChange{field, fmt.Sprint(v)})
		}
	}

	num("Active timeout", &out.ActiveWait, in.ActiveWait)
	num("Movement resolution", &out.PassiveWait, in.PassiveWait)
	num("Movement timeout", &out.MovementTimeout, in.MovementTimeout)
	num("Movement threshold", &out.MovementThreshold, in.MovementThreshold)
	num("GPS timeout", &out.GPSTimeout, in.GPSTimeout)

	return out, changes
}
