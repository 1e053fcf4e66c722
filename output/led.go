package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Pattern is a status LED pattern
type Pattern int

// LED patterns
const (
	PatternOff Pattern = iota
	PatternLTEConnecting
	PatternActive
	PatternPassive
	PatternGPSSearching
	PatternPublishing
	PatternSystemFault
)

func (p Pattern) String() string {
	switch p {
	case PatternOff:
		return "off"
	case PatternLTEConnecting:
		return "lte connecting"
	case PatternActive:
		return "active mode"
	case PatternPassive:
		return "passive mode"
	case PatternGPSSearching:
		return "gps searching"
	case PatternPublishing:
		return "cloud publishing"
	case PatternSystemFault:
		return "system fault"
	default:
		return fmt.Sprintf("pattern(%d)", int(p))
	}
}

// LED shows patterns
type LED interface {
	Init() error
	SetPattern(p Pattern) error
}

// LogLED only logs patterns, for hosts without a status LED
type LogLED struct {
	Log *logrus.Entry
}

// Init implements LED
func (l LogLED) Init() error { return nil }

// SetPattern implements LED
func (l LogLED) SetPattern(p Pattern) error {
	l.Log.Infof("LED: %v", p)
	return nil
}

// blink timing in ms, on 0 is off and off 0 is steady on
type blink struct {
	on, off int
}

var blinks = map[Pattern]blink{
	PatternOff:           {0, 0},
	PatternLTEConnecting: {500, 500},
	PatternActive:        {100, 4900},
	PatternPassive:       {100, 9900},
	PatternGPSSearching:  {250, 250},
	PatternPublishing:    {50, 50},
	PatternSystemFault:   {1, 0},
}

// SysfsLED drives a Linux LED class device, /sys/class/leds/<name>, with
// the timer trigger.
type SysfsLED struct {
	dir string
}

// NewSysfsLED creates a driver for LED name. root is normally
// /sys/class/leds.
func NewSysfsLED(root, name string) *SysfsLED {
	return &SysfsLED{dir: filepath.Join(root, name)}
}

func (s *SysfsLED) write(file, value string) error {
	err := os.WriteFile(filepath.Join(s.dir, file), []byte(value), 0644)
	return errors.Wrapf(err, "error writing LED %v", file)
}

// Init implements LED
func (s *SysfsLED) Init() error {
	if _, err := os.Stat(filepath.Join(s.dir, "brightness")); err != nil {
		return errors.Wrap(err, "LED not found")
	}
	return s.SetPattern(PatternOff)
}

// SetPattern implements LED
func (s *SysfsLED) SetPattern(p Pattern) error {
	b, ok := blinks[p]
	if !ok {
		return fmt.Errorf("unknown pattern: %v", p)
	}

	switch {
	case b.on == 0:
		if err := s.write("trigger", "none"); err != nil {
			return err
		}
		return s.write("brightness", "0")
	case b.off == 0:
		if err := s.write("trigger", "none"); err != nil {
			return err
		}
		return s.write("brightness", "1")
	}

	// delay files appear once the timer trigger is set
	if err := s.write("trigger", "timer"); err != nil {
		return err
	}
	if err := s.write("delay_on", strconv.Itoa(b.on)); err != nil {
		return err
	}
	return s.write("delay_off", strconv.Itoa(b.off))
}
