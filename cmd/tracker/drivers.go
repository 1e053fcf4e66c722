package main

import (
	"io"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/gps"
	"github.com/simpleiot/assettracker/modem"
	"github.com/simpleiot/assettracker/output"
	"github.com/simpleiot/assettracker/sensors"
	"github.com/simpleiot/assettracker/sim"
	"github.com/simpleiot/assettracker/system"
	"github.com/simpleiot/assettracker/ui"
)

// tof10120 sends at a fixed rate
const tofBaud = 9600

type drivers struct {
	gps      gps.Driver
	assister gps.Assister
	modem    modem.Driver
	env      sensors.EnvSensor
	motion   sensors.MotionSensor
	buttons  ui.Buttons
	led      output.LED

	closers []func() error
}

func (d *drivers) close(log *logrus.Entry) {
	for _, c := range d.closers {
		if err := c(); err != nil {
			log.WithError(err).Warn("Error closing driver")
		}
	}
}

func newDrivers(o Options, c clock.Clock, log *logrus.Entry) (*drivers, error) {
	d := &drivers{}

	if o.Sim {
		log.Info("Using simulated drivers")
		dev := sim.NewDevice(c, o.SimLat, o.SimLon)
		d.gps = dev.GPS
		d.assister = dev.GPS
		d.modem = dev.Modem
		d.env = dev.Env
		d.motion = dev.Motion
	} else {
		nmea := gps.NewNMEA(func() (io.ReadWriteCloser, error) {
			return system.OpenSerial(o.GPSPort, o.GPSBaud)
		}, log.WithField("driver", "nmea"))
		d.gps = nmea
		d.assister = nmea
		d.closers = append(d.closers, nmea.Close)

		at := modem.NewAT(func() (io.ReadWriteCloser, error) {
			return system.OpenSerial(o.ModemPort, o.ModemBaud)
		}, 0, log.WithField("driver", "at"))
		d.modem = at
		d.closers = append(d.closers, at.Close)

		if o.HostSensor != "" {
			key := o.HostSensor
			if key == "any" {
				key = ""
			}
			d.env = sensors.NewHost(key)
		}

		if o.TOFPort != "" {
			port, err := system.OpenSerial(o.TOFPort, tofBaud)
			if err != nil {
				d.close(log)
				return nil, err
			}
			d.motion = sensors.NewTOF10120(port, log.WithField("driver", "tof10120"))
			d.closers = append(d.closers, port.Close)
		}
	}

	if o.ButtonDir != "" {
		files := ui.NewFiles(o.ButtonDir, log.WithField("driver", "buttons"))
		d.buttons = files
		d.closers = append(d.closers, files.Close)
	} else {
		signals := ui.NewSignals()
		d.buttons = signals
		d.closers = append(d.closers, func() error {
			signals.Close()
			return nil
		})
	}

	if o.LED != "" {
		d.led = output.NewSysfsLED("/sys/class/leds", o.LED)
	} else {
		d.led = output.LogLED{Log: log.WithField("driver", "led")}
	}

	return d, nil
}
