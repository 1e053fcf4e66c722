package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/simpleiot/assettracker/data"
)

// Env is a simulated temperature and humidity sensor
type Env struct {
	lock sync.Mutex
	temp Walk
	hum  Walk
}

// NewEnv creates a simulated environmental sensor
func NewEnv() *Env {
	return &Env{
		temp: NewWalk(21, 0.2, 18, 26),
		hum:  NewWalk(45, 0.5, 30, 60),
	}
}

// Env implements sensors.EnvSensor
func (e *Env) Env() (data.Env, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	return data.Env{Temp: e.temp.Next(), Hum: e.hum.Next()}, nil
}

// Motion shakes the tracker every Period. The shake strength walks between
// 0 and 200; shakes below the threshold are not reported.
type Motion struct {
	Period time.Duration

	clock clock.Clock

	lock      sync.Mutex
	threshold int
	strength  Walk
	ticker    *clock.Ticker
}

// NewMotion creates a simulated motion sensor
func NewMotion(c clock.Clock) *Motion {
	if c == nil {
		c = clock.New()
	}
	return &Motion{
		Period:   30 * time.Second,
		clock:    c,
		strength: NewWalk(0, 40, 0, 200),
	}
}

// SetThreshold implements sensors.MotionSensor
func (m *Motion) SetThreshold(threshold int) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.threshold = threshold
	return nil
}

// Start implements sensors.MotionSensor
func (m *Motion) Start(handler func(data.Accel)) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.ticker != nil {
		return errors.New("motion already started")
	}
	m.ticker = m.clock.Ticker(m.Period)
	ticker := m.ticker

	go func() {
		for range ticker.C {
			m.lock.Lock()
			s := m.strength.Next()
			th := m.threshold
			m.lock.Unlock()
			if s >= float64(th) {
				handler(data.Accel{X: s / 2, Y: s / 4, Z: s})
			}
		}
	}()
	return nil
}
