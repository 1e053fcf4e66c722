// Package supervisor turns systemic errors into a coordinated reboot. The
// first error broadcasts a shutdown request; the reboot happens when every
// live module acknowledged it, or when the graceful window runs out.
package supervisor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/bus"
	"github.com/simpleiot/assettracker/event"
	"github.com/simpleiot/assettracker/metrics"
	"github.com/simpleiot/assettracker/module"
)

// Name of the module
const Name = "util"

// Default timeouts
const (
	DefaultGracefulTimeout = 60 * time.Second
	DefaultQuorumTimeout   = 5 * time.Second
)

// ErrFotaDone is the reboot reason after a firmware download
var ErrFotaDone = errors.New("firmware update downloaded")

// Rebooter restarts the device. Reboot is called at most once.
type Rebooter interface {
	Reboot(reason error)
}

// RebooterFunc adapts a function to Rebooter
type RebooterFunc func(reason error)

// Reboot calls f
func (f RebooterFunc) Reboot(reason error) { f(reason) }

// Options for New. Bus, Registry and Rebooter are required.
type Options struct {
	Bus             *bus.Bus
	Registry        *module.Registry
	Rebooter        Rebooter
	Clock           clock.Clock
	Log             *logrus.Entry
	Metrics         *metrics.Metrics
	GracefulTimeout time.Duration
	QuorumTimeout   time.Duration
}

type state int

const (
	stateInit state = iota
	stateRebootPending
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "STATE_INIT"
	case stateRebootPending:
		return "STATE_REBOOT_PENDING"
	default:
		return "Unknown state"
	}
}

// Supervisor handles its events synchronously in the bus handler, so it
// does not own a queue and does not register as a live module.
type Supervisor struct {
	bus      *bus.Bus
	registry *module.Registry
	rebooter Rebooter
	log      *logrus.Entry
	metrics  *metrics.Metrics

	graceful time.Duration
	quorum   time.Duration

	reboot     *module.Timer
	rebootOnce sync.Once

	lock         sync.Mutex
	state        state
	reason       error
	acks         int
	quorumArmed  bool
	acknowledged map[event.Source]bool
}

// New creates the supervisor and subscribes it early to every source
func New(o Options) *Supervisor {
	if o.Log == nil {
		o.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.GracefulTimeout <= 0 {
		o.GracefulTimeout = DefaultGracefulTimeout
	}
	if o.QuorumTimeout <= 0 {
		o.QuorumTimeout = DefaultQuorumTimeout
	}

	s := &Supervisor{
		bus:          o.Bus,
		registry:     o.Registry,
		rebooter:     o.Rebooter,
		log:          o.Log.WithField("module", Name),
		metrics:      o.Metrics,
		graceful:     o.GracefulTimeout,
		quorum:       o.QuorumTimeout,
		acknowledged: make(map[event.Source]bool),
	}

	s.reboot = module.NewTimer(o.Clock, s.doReboot)

	o.Bus.Subscribe(Name, bus.Early, s.handle, event.Sources...)

	return s
}

// Fatal reports an error that did not travel over the bus, like a panic
// in a module goroutine or a hardware fault. It behaves like an error
// event.
func (s *Supervisor) Fatal(err error) {
	s.log.WithError(err).Error("Fatal error")
	s.trigger(err)
}

// Recover is deferred in goroutines outside the run group. A panic is
// reported through Fatal and not propagated.
func (s *Supervisor) Recover() {
	if r := recover(); r != nil {
		s.Fatal(fmt.Errorf("panic: %v", r))
	}
}

// Pending reports whether a reboot was requested
func (s *Supervisor) Pending() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state == stateRebootPending
}

func (s *Supervisor) handle(_ bus.Publisher, ev event.Event) {
	switch e := ev.(type) {
	case event.Error:
		s.log.Errorf("Error event from %v: %v", e.From, e.Err)
		if e.Err == nil {
			s.trigger(errors.New(e.String()))
			return
		}
		s.trigger(fmt.Errorf("%v: %w", e.From, e.Err))
	case event.CloudFotaDone:
		s.log.Infof("Firmware %v downloaded, rebooting", e.Version)
		s.trigger(fmt.Errorf("%w: %v", ErrFotaDone, e.Version))
	case event.ShutdownReady:
		s.ack(e.From)
	}
}

// trigger latches the reboot request. Publishing happens after the lock
// is released since our own handler sees the request.
func (s *Supervisor) trigger(reason error) {
	s.lock.Lock()
	if s.state == stateRebootPending {
		s.lock.Unlock()
		s.log.Debugf("Reboot already pending, ignoring: %v", reason)
		return
	}
	s.log.Debugf("State transition %v --> %v", s.state, stateRebootPending)
	s.state = stateRebootPending
	s.reason = reason
	s.reboot.Start(s.graceful, 0)
	s.lock.Unlock()

	s.log.Warnf("Requesting shutdown, reboot in at most %v", s.graceful)
	s.bus.Publish(event.UtilShutdownRequest{Reason: reason.Error()})
}

func (s *Supervisor) ack(from event.Source) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state != stateRebootPending {
		s.log.Warnf("Shutdown ready from %v without a request", from)
		return
	}

	if s.acknowledged[from] {
		s.log.Warnf("Duplicate shutdown ready from %v", from)
		return
	}
	s.acknowledged[from] = true
	s.acks++
	s.metrics.ShutdownAck(s.acks)

	live := s.registry.Live()
	s.log.Infof("Shutdown ready from %v (%v/%v)", from, s.acks, live)

	if int64(s.acks) >= live && !s.quorumArmed {
		s.quorumArmed = true
		s.log.Infof("All modules ready, reboot in %v", s.quorum)
		s.reboot.Start(s.quorum, 0)
	}
}

func (s *Supervisor) doReboot() {
	s.rebootOnce.Do(func() {
		s.lock.Lock()
		reason := s.reason
		acks := s.acks
		s.lock.Unlock()

		s.log.WithError(reason).Warnf("Rebooting, %v modules acknowledged", acks)
		s.rebooter.Reboot(reason)
	})
}
