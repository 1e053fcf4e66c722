package sensors

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/data"
)

// The TOF10120 is a Laser distance sensing (TOF) module. Mounted facing a
// fixed surface it detects the tracker being moved: a change in distance
// larger than the threshold is reported as a movement.

// Wiring of TOF10120 to FTDI cable:
// TOF10120	  FTDI
// 1 (black, GND) 1 (blk, GND)
// 2 (red, VDD)	  3 (red, VCC)
// 3 (yel, RXD)	  4 (org, TXD)
// 4 (wht, TXD)	  5 (yel, RXD)

// TOF10120 is a motion driver for a TOF10120 sensor
type TOF10120 struct {
	port   io.ReadWriter
	reader *bufio.Reader
	log    *logrus.Entry

	lock      sync.Mutex
	threshold int
	started   bool
}

// NewTOF10120 creates a driver on port. The sensor sends one "<n>mm" line
// per reading.
func NewTOF10120(port io.ReadWriter, log *logrus.Entry) *TOF10120 {
	return &TOF10120{
		port:   port,
		reader: bufio.NewReader(port),
		log:    log,
	}
}

var re = regexp.MustCompile(`^([0-9]*)mm`)

func (tof *TOF10120) readLine() (string, error) {
	line, err := tof.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// SetSendInterval sets the interval at which sensor sends data,
// 10-9999ms, default 100ms. Must be called before Start.
func (tof *TOF10120) SetSendInterval(interval int) error {
	tof.lock.Lock()
	started := tof.started
	tof.lock.Unlock()
	if started {
		return errors.New("sensor already started")
	}

	// try to fit this between two send intervals
	if _, err := tof.readLine(); err != nil {
		return fmt.Errorf("sensor does not seem to be active: %w", err)
	}

	if _, err := fmt.Fprintf(tof.port, "s2-%v#", interval); err != nil {
		return err
	}

	// readings may still arrive before the answer
	for i := 0; i < 3; i++ {
		line, err := tof.readLine()
		if err != nil {
			return fmt.Errorf("sensor did not answer: %w", err)
		}
		if strings.Contains(line, "ok") {
			return nil
		}
	}

	return errors.New("sensor did not return ok")
}

// SetThreshold implements MotionSensor, the threshold is a distance
// change in mm.
func (tof *TOF10120) SetThreshold(threshold int) error {
	if threshold <= 0 {
		return fmt.Errorf("invalid movement threshold: %v", threshold)
	}
	tof.lock.Lock()
	defer tof.lock.Unlock()
	tof.threshold = threshold
	return nil
}

// Start implements MotionSensor. The first reading is the reference
// distance; each reported movement becomes the new reference.
func (tof *TOF10120) Start(handler func(data.Accel)) error {
	tof.lock.Lock()
	defer tof.lock.Unlock()
	if tof.started {
		return errors.New("sensor already started")
	}
	tof.started = true

	go func() {
		err := tof.read(handler)
		tof.log.WithError(err).Warn("TOF10120 stopped")
	}()

	return nil
}

func (tof *TOF10120) read(handler func(data.Accel)) error {
	ref := -1

	for {
		line, err := tof.readLine()
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		matches := re.FindStringSubmatch(line)
		if len(matches) < 2 || matches[1] == "" {
			tof.log.Debugf("TOF10120: error parsing %q", line)
			continue
		}

		dist, err := strconv.Atoi(matches[1])
		if err != nil {
			tof.log.Debugf("TOF10120: %v", err)
			continue
		}

		if ref < 0 {
			ref = dist
			continue
		}

		tof.lock.Lock()
		threshold := tof.threshold
		tof.lock.Unlock()

		delta := dist - ref
		if threshold > 0 && (delta >= threshold || -delta >= threshold) {
			ref = dist
			handler(data.Accel{Z: float64(delta)})
		}
	}
}
