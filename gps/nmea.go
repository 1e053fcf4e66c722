package gps

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/data"
)

// ephemerisAge is how long a receiver keeps usable orbit data after a fix.
// Searches started later ask the cloud for assistance data.
const ephemerisAge = 4 * time.Hour

// NMEA is a driver for receivers that stream NMEA 0183 sentences. A fix
// is reported when a GGA with a fix is followed by a valid RMC.
type NMEA struct {
	open func() (io.ReadWriteCloser, error)
	log  *logrus.Entry
	now  func() time.Time

	lock      sync.Mutex
	port      io.ReadWriteCloser
	handler   func(Event)
	searching bool
	closed    bool
	lastFix   time.Time
	gga       *nmea.GGA
}

// NewNMEA creates a driver that reads from the port returned by open
func NewNMEA(open func() (io.ReadWriteCloser, error), log *logrus.Entry) *NMEA {
	return &NMEA{
		open: open,
		log:  log,
		now:  time.Now,
	}
}

// Init opens the port and starts reading sentences
func (n *NMEA) Init(handler func(Event)) error {
	port, err := n.open()
	if err != nil {
		return errors.Wrap(err, "error opening GPS port")
	}

	n.lock.Lock()
	n.port = port
	n.handler = handler
	n.lock.Unlock()

	go n.read(port)

	return nil
}

func (n *NMEA) emit(e Event) {
	n.lock.Lock()
	h := n.handler
	n.lock.Unlock()
	if h != nil {
		h(e)
	}
}

func (n *NMEA) read(port io.Reader) {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		s, err := nmea.Parse(line)
		if err != nil {
			n.log.Debugf("Error parsing NMEA sentence %q: %v", line, err)
			continue
		}

		if fix, ok := n.sentence(s); ok {
			n.emit(Event{Type: EventFix, Fix: fix})
		}
	}

	n.lock.Lock()
	closed := n.closed
	n.lock.Unlock()

	if closed {
		return
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	n.emit(Event{Type: EventError, Err: errors.Wrap(err, "GPS port read")})
}

func (n *NMEA) sentence(s nmea.Sentence) (data.GPS, bool) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if !n.searching {
		return data.GPS{}, false
	}

	switch s.DataType() {
	case nmea.TypeGGA:
		gga := s.(nmea.GGA)
		var g data.GPS
		if g.FromGGA(gga) {
			n.gga = &gga
		} else {
			n.gga = nil
		}
	case nmea.TypeRMC:
		if n.gga == nil {
			return data.GPS{}, false
		}
		var g data.GPS
		g.FromGGA(*n.gga)
		if !g.FromRMC(s.(nmea.RMC)) {
			return data.GPS{}, false
		}
		n.gga = nil
		n.lastFix = n.now()
		return g, true
	}

	return data.GPS{}, false
}

// Start a search. A receiver without a recent fix asks for assistance
// data first.
func (n *NMEA) Start() error {
	n.lock.Lock()
	if n.port == nil {
		n.lock.Unlock()
		return errors.New("GPS not initialized")
	}
	n.searching = true
	n.gga = nil
	stale := n.lastFix.IsZero() || n.now().Sub(n.lastFix) > ephemerisAge
	n.lock.Unlock()

	if stale {
		n.emit(Event{Type: EventAGPSNeeded, AGPS: data.AGPSRequest{
			SvMaskEphe:  0xffffffff,
			SvMaskAlm:   0xffffffff,
			UTC:         true,
			KlobucharIo: true,
			Position:    true,
			SysTime:     true,
			Integrity:   true,
		}})
	}

	return nil
}

// Stop the search. The receiver keeps tracking, sentences are ignored.
func (n *NMEA) Stop() error {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.searching = false
	n.gga = nil
	return nil
}

// InjectAGPS writes assistance data to the receiver as is
func (n *NMEA) InjectAGPS(payload []byte) error {
	n.lock.Lock()
	port := n.port
	n.lock.Unlock()

	if port == nil {
		return errors.New("GPS not initialized")
	}

	_, err := port.Write(payload)
	return errors.Wrap(err, "error writing assistance data")
}

// Close the port
func (n *NMEA) Close() error {
	n.lock.Lock()
	port := n.port
	n.closed = true
	n.lock.Unlock()

	if port == nil {
		return nil
	}
	return port.Close()
}
