package system

import (
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/sirupsen/logrus"
)

// DefaultNTPServer is queried when no server is configured
const DefaultNTPServer = "0.pool.ntp.org"

// DateTime is the tracker time source. Data is only timestamped and sent
// after the time was obtained once, from NTP or from a GPS fix.
type DateTime struct {
	server   string
	query    func(host string) (time.Time, error)
	setClock bool
	log      *logrus.Entry

	lock     sync.Mutex
	valid    bool
	offset   time.Duration
	handler  func()
	updating bool
}

// NewDateTime creates a time source that queries server. If setClock is
// true, the obtained time is also written to the system clock.
func NewDateTime(server string, setClock bool, log *logrus.Entry) *DateTime {
	if server == "" {
		server = DefaultNTPServer
	}
	return &DateTime{
		server:   server,
		query:    ntp.Time,
		setClock: setClock,
		log:      log,
	}
}

// SetQuery replaces the NTP query, used in tests
func (d *DateTime) SetQuery(q func(host string) (time.Time, error)) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.query = q
}

// SetHandler registers fn to be called every time the time is obtained
func (d *DateTime) SetHandler(fn func()) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.handler = fn
}

// Valid reports whether the time was obtained
func (d *DateTime) Valid() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.valid
}

// Now returns the corrected current time
func (d *DateTime) Now() time.Time {
	d.lock.Lock()
	defer d.lock.Unlock()
	return time.Now().Add(d.offset)
}

// Set records t as the current time
func (d *DateTime) Set(t time.Time, from string) {
	offset := time.Until(t)
	d.log.Infof("Date time obtained from %v, offset %v", from, offset)

	// a corrected system clock needs no offset
	if d.setClock {
		if err := SetTime(t); err != nil {
			d.log.Warnf("Error setting system time: %v", err)
		} else {
			offset = 0
		}
	}

	d.lock.Lock()
	d.offset = offset
	d.valid = true
	handler := d.handler
	d.lock.Unlock()

	if handler != nil {
		handler()
	}
}

// Update queries NTP once
func (d *DateTime) Update() error {
	d.lock.Lock()
	query := d.query
	d.lock.Unlock()

	t, err := query(d.server)
	if err != nil {
		d.log.Warnf("Error fetching time from %v: %v", d.server, err)
		return err
	}

	d.Set(t, "ntp")
	return nil
}

// UpdateAsync runs Update on a new goroutine unless one is in progress
func (d *DateTime) UpdateAsync() {
	d.lock.Lock()
	if d.updating {
		d.lock.Unlock()
		return
	}
	d.updating = true
	d.lock.Unlock()

	go func() {
		_ = d.Update()
		d.lock.Lock()
		d.updating = false
		d.lock.Unlock()
	}()
}
