package data

import "time"

// Record is implemented by every buffered data type. WithQueued returns a
// copy with the lifecycle flag replaced.
type Record[T any] interface {
	IsQueued() bool
	WithQueued(bool) T
}

// Env is an environmental sample
type Env struct {
	Temp   float64   `json:"temp"`
	Hum    float64   `json:"hum"`
	Time   time.Time `json:"ts"`
	Queued bool      `json:"-"`
}

// IsQueued implements Record
func (e Env) IsQueued() bool { return e.Queued }

// WithQueued implements Record
func (e Env) WithQueued(q bool) Env {
	e.Queued = q
	return e
}

// Cell describes the serving cell
type Cell struct {
	ID     uint32 `json:"cell"`
	Area   uint32 `json:"area"`
	MccMnc string `json:"mccmnc"`
}

// Modem is a modem sample. Static fields change only across reboots.
type Modem struct {
	RSRP int    `json:"rsrp"`
	IP   string `json:"ip"`
	Cell
	Band       int       `json:"band"`
	Mode       string    `json:"nw"`
	ICCID      string    `json:"iccid"`
	Firmware   string    `json:"modV"`
	Board      string    `json:"brdV"`
	AppVersion string    `json:"appV"`
	Time       time.Time `json:"ts"`
	Queued     bool      `json:"-"`
}

// IsQueued implements Record
func (m Modem) IsQueued() bool { return m.Queued }

// WithQueued implements Record
func (m Modem) WithQueued(q bool) Modem {
	m.Queued = q
	return m
}

// Battery is a battery voltage sample in millivolts
type Battery struct {
	Voltage int       `json:"bat"`
	Time    time.Time `json:"ts"`
	Queued  bool      `json:"-"`
}

// IsQueued implements Record
func (b Battery) IsQueued() bool { return b.Queued }

// WithQueued implements Record
func (b Battery) WithQueued(q bool) Battery {
	b.Queued = q
	return b
}

// UI is a button press
type UI struct {
	Button int       `json:"btn"`
	Time   time.Time `json:"ts"`
	Queued bool      `json:"-"`
}

// IsQueued implements Record
func (u UI) IsQueued() bool { return u.Queued }

// WithQueued implements Record
func (u UI) WithQueued(q bool) UI {
	u.Queued = q
	return u
}

// Accel is an accelerometer trigger
type Accel struct {
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Z      float64   `json:"z"`
	Time   time.Time `json:"ts"`
	Queued bool      `json:"-"`
}

// IsQueued implements Record
func (a Accel) IsQueued() bool { return a.Queued }

// WithQueued implements Record
func (a Accel) WithQueued(q bool) Accel {
	a.Queued = q
	return a
}

// AGPSRequest lists the assistance data types a GPS receiver needs.
type AGPSRequest struct {
	SvMaskEphe  uint32 `json:"svMaskEphe"`
	SvMaskAlm   uint32 `json:"svMaskAlm"`
	UTC         bool   `json:"utc"`
	KlobucharIo bool   `json:"klobuchar"`
	Position    bool   `json:"position"`
	SysTime     bool   `json:"sysTime"`
	Integrity   bool   `json:"integrity"`
}
