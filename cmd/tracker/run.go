package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/aggregate"
	"github.com/simpleiot/assettracker/app"
	"github.com/simpleiot/assettracker/bus"
	"github.com/simpleiot/assettracker/cloud"
	"github.com/simpleiot/assettracker/codec"
	"github.com/simpleiot/assettracker/data"
	"github.com/simpleiot/assettracker/gps"
	"github.com/simpleiot/assettracker/metrics"
	"github.com/simpleiot/assettracker/modem"
	"github.com/simpleiot/assettracker/module"
	"github.com/simpleiot/assettracker/output"
	"github.com/simpleiot/assettracker/sensors"
	"github.com/simpleiot/assettracker/store"
	"github.com/simpleiot/assettracker/supervisor"
	"github.com/simpleiot/assettracker/system"
	"github.com/simpleiot/assettracker/transport"
	"github.com/simpleiot/assettracker/ui"
)

// deviceIDKey is the settings key of the generated device ID
const deviceIDKey = "tracker/device_id"

// RebootError is returned by runTracker when the supervisor asked for a
// reboot. The service manager restarts the tracker.
type RebootError struct {
	Reason error
}

func (e RebootError) Error() string {
	return fmt.Sprintf("reboot: %v", e.Reason)
}

func (e RebootError) Unwrap() error { return e.Reason }

func newLogger(o Options) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(o.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if o.Syslog {
		hook, err := system.SyslogHook("tracker")
		if err != nil {
			logger.WithError(err).Warn("Syslog not available")
		} else {
			logger.AddHook(hook)
		}
	}

	return logger, nil
}

// deviceID returns the configured ID or the one stored in settings,
// generating it on first start.
func deviceID(o Options, settings store.Settings) (string, error) {
	if o.DeviceID != "" {
		return o.DeviceID, nil
	}

	buf, err := settings.Load(deviceIDKey)
	if err == nil {
		return string(buf), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	id := uuid.New().String()
	if err := settings.Save(deviceIDKey, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

// seedConfig stores cfg if no configuration was stored yet. A stored
// configuration came from the cloud and wins.
func seedConfig(cfg data.Config, settings store.Settings) error {
	_, err := settings.Load(aggregate.ConfigKey)
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	buf, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return settings.Save(aggregate.ConfigKey, buf)
}

func newTransport(o Options, id, version string, log *logrus.Entry) (transport.Transport, error) {
	switch o.Transport {
	case "mqtt":
		return transport.NewMQTT(transport.MQTTOptions{
			Broker:     o.Server,
			ClientID:   id,
			Username:   o.Username,
			Password:   o.Password,
			Prefix:     o.Prefix,
			Device:     id,
			AppVersion: version,
		}, log.WithField("module", "mqtt"))
	case "nats":
		return transport.NewNATS(transport.NATSOptions{
			URI:        o.Server,
			AuthToken:  o.Token,
			Prefix:     o.Prefix,
			Device:     id,
			AppVersion: version,
		}, log.WithField("module", "nats"))
	default:
		return nil, fmt.Errorf("unknown transport: %v", o.Transport)
	}
}

// guarded reports a panic in a module to the supervisor and keeps the run
// group alive until the reboot.
type guarded struct {
	m    module.RunStop
	sup  *supervisor.Supervisor
	stop chan struct{}
	once sync.Once
}

func guard(m module.RunStop, sup *supervisor.Supervisor) *guarded {
	return &guarded{m: m, sup: sup, stop: make(chan struct{})}
}

func (g *guarded) run() (done bool, err error) {
	defer g.sup.Recover()
	err = g.m.Run()
	return true, err
}

func (g *guarded) Run() error {
	done, err := g.run()
	if !done {
		<-g.stop
	}
	if err != nil {
		return fmt.Errorf("%T: %w", g.m, err)
	}
	return nil
}

func (g *guarded) Stop(err error) {
	g.once.Do(func() { close(g.stop) })
	g.m.Stop(err)
}

func runTracker(o Options, version string) error {
	logger, err := newLogger(o)
	if err != nil {
		return err
	}
	log := logrus.NewEntry(logger)
	log.Infof("Asset tracker %v", version)

	if osVer, err := system.ReadOSVersion(system.ReleaseFile); err != nil {
		log.WithError(err).Debug("OS version not available")
	} else {
		log.Infof("OS version: %v", osVer)
	}

	settings, err := store.Open(store.Type(o.Store), o.DataDir)
	if err != nil {
		return fmt.Errorf("error opening settings store: %w", err)
	}
	defer settings.Close()

	id, err := deviceID(o, settings)
	if err != nil {
		return fmt.Errorf("error loading device ID: %w", err)
	}
	log.Infof("Device ID: %v", id)

	if err := seedConfig(o.Device, settings); err != nil {
		return fmt.Errorf("error storing default configuration: %w", err)
	}

	cdc, err := codec.New(o.Codec)
	if err != nil {
		return err
	}

	tr, err := newTransport(o, id, version, log)
	if err != nil {
		return err
	}

	m := metrics.New()
	c := clock.New()

	eb := bus.New(bus.WithLogger(log.WithField("module", "bus")), bus.WithMetrics(m))
	reg := module.NewRegistry(m)

	if o.Mirror != "" {
		nc, err := nats.Connect(o.Mirror, nats.Name("tracker-"+id))
		if err != nil {
			return fmt.Errorf("error connecting to mirror server: %w", err)
		}
		defer nc.Close()
		bus.NewMirror(eb, nc, id, log.WithField("module", "mirror"))
	}

	drv, err := newDrivers(o, c, log)
	if err != nil {
		return err
	}
	defer drv.close(log)

	reboot := make(chan error, 1)
	sup := supervisor.New(supervisor.Options{
		Bus:      eb,
		Registry: reg,
		Rebooter: supervisor.RebooterFunc(func(reason error) {
			select {
			case reboot <- reason:
			default:
			}
		}),
		Clock:           c,
		Log:             log,
		Metrics:         m,
		GracefulTimeout: o.GracefulTimeout,
		QuorumTimeout:   o.QuorumTimeout,
	})

	dt := system.NewDateTime(o.NTPServer, o.SetClock, log.WithField("module", "datetime"))

	agg := aggregate.New(aggregate.Options{
		Bus:      eb,
		Registry: reg,
		Codec:    cdc,
		Settings: settings,
		Time:     dt,
		Clock:    c,
		Log:      log,
		Metrics:  m,
	})
	dt.SetHandler(agg.TimeObtained)

	modules := []module.RunStop{
		agg,
		cloud.New(cloud.Options{
			Bus:       eb,
			Registry:  reg,
			Transport: tr,
			Codec:     cdc,
			Assister:  drv.assister,
			Clock:     c,
			Log:       log,
			Metrics:   m,
		}),
		gps.New(gps.Options{
			Bus:      eb,
			Registry: reg,
			Driver:   drv.gps,
			Time:     dt,
			Clock:    c,
			Log:      log,
			Metrics:  m,
		}),
		modem.New(modem.Options{
			Bus:              eb,
			Registry:         reg,
			Driver:           drv.modem,
			Time:             dt,
			Clock:            c,
			Log:              log,
			Metrics:          m,
			AppVersion:       version,
			Board:            o.Board,
			ExpectedFirmware: o.ModemFirmware,
		}),
		sensors.New(sensors.Options{
			Bus:      eb,
			Registry: reg,
			Env:      drv.env,
			Motion:   drv.motion,
			Time:     dt,
			Clock:    c,
			Log:      log,
			Metrics:  m,
		}),
	}

	// synchronous modules, started by the app start event
	ui.New(ui.Options{Bus: eb, Registry: reg, Buttons: drv.buttons, Time: dt, Clock: c, Log: log})
	output.New(output.Options{Bus: eb, Registry: reg, LED: drv.led, Clock: c, Log: log})

	// app publishes the start event, all other modules are subscribed by now
	modules = append(modules, app.New(app.Options{
		Bus:      eb,
		Registry: reg,
		Clock:    c,
		Log:      log,
		Metrics:  m,
	}))

	g := module.NewRunGroup("tracker")
	for _, mod := range modules {
		gm := guard(mod, sup)
		g.AddFunc(gm.Run, gm.Stop)
	}

	g.AddFunc(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	stopReboot := make(chan struct{})
	g.AddFunc(func() error {
		select {
		case reason := <-reboot:
			return RebootError{Reason: reason}
		case <-stopReboot:
			return nil
		}
	}, func(error) {
		close(stopReboot)
	})

	if o.MetricsAddr != "" {
		srv := &http.Server{Addr: o.MetricsAddr, Handler: m.Handler()}
		g.AddFunc(func() error {
			log.Infof("Serving metrics on %v", o.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}

	// NTP in the background, a GPS fix may be first
	dt.UpdateAsync()

	return g.Run()
}
