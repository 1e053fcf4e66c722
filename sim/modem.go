package sim

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/simpleiot/assettracker/data"
	"github.com/simpleiot/assettracker/modem"
)

// Modem is a simulated LTE modem that registers AttachDelay after connect
type Modem struct {
	AttachDelay time.Duration
	Firmware    string

	clock clock.Clock

	lock      sync.Mutex
	connected time.Time
	rsrp      Walk
	voltage   Walk
}

// NewModem creates a simulated modem
func NewModem(c clock.Clock) *Modem {
	if c == nil {
		c = clock.New()
	}
	return &Modem{
		AttachDelay: 3 * time.Second,
		Firmware:    "mfw_sim_1.0.0",
		clock:       c,
		rsrp:        NewWalk(-90, 2, -110, -70),
		voltage:     NewWalk(4100, 5, 3500, 4200),
	}
}

var simCell = data.Cell{ID: 0x00112233, Area: 0x0101, MccMnc: "00101"}

// Init implements modem.Driver
func (m *Modem) Init() error { return nil }

// Connect implements modem.Driver
func (m *Modem) Connect() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.connected = m.clock.Now()
	return nil
}

// Status implements modem.Driver
func (m *Modem) Status() (modem.Status, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.connected.IsZero() {
		return modem.Status{Reg: modem.RegNotRegistered}, nil
	}
	if m.clock.Now().Sub(m.connected) < m.AttachDelay {
		return modem.Status{Reg: modem.RegSearching}, nil
	}
	return modem.Status{Reg: modem.RegHome, Cell: simCell, AcT: 7}, nil
}

// Sample implements modem.Driver
func (m *Modem) Sample() (data.Modem, error) {
	st, _ := m.Status()

	m.lock.Lock()
	defer m.lock.Unlock()

	ret := data.Modem{
		RSRP:     int(m.rsrp.Next()),
		Cell:     st.Cell,
		Band:     20,
		Mode:     st.Mode(),
		ICCID:    "89000000000000000001",
		Firmware: m.Firmware,
	}
	if st.Registered() {
		ret.IP = "10.0.0.2"
	}
	return ret, nil
}

// Battery implements modem.Driver
func (m *Modem) Battery() (data.Battery, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return data.Battery{Voltage: int(m.voltage.Next())}, nil
}

// PowerOff implements modem.Driver
func (m *Modem) PowerOff() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.connected = time.Time{}
	return nil
}
