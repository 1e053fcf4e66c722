// Package bus is the in-process broadcast event bus the tracker modules
// communicate over.
//
// Publish is synchronous: every handler subscribed to the event source runs
// on the publisher's goroutine before Publish returns. Early subscribers run
// first, then normal, then final; within a phase handlers run in
// registration order. Handlers either copy the event into their module
// queue or react immediately, possibly publishing further events through
// the Publisher they are handed. That nested publish is bounded by MaxDepth.
package bus

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/event"
	"github.com/simpleiot/assettracker/metrics"
)

// Priority orders handlers within a publish
type Priority int

// subscription phases
const (
	Early Priority = iota
	Normal
	Final
)

func (p Priority) String() string {
	switch p {
	case Early:
		return "early"
	case Normal:
		return "normal"
	case Final:
		return "final"
	default:
		return "unknown"
	}
}

// DefaultMaxDepth bounds nested publishes from handlers
const DefaultMaxDepth = 8

// Publisher publishes events
type Publisher interface {
	Publish(ev event.Event)
}

// Handler is called for every event of a subscribed source. pub must be
// used for any publish made while handling ev.
type Handler func(pub Publisher, ev event.Event)

type subscriber struct {
	name     string
	priority Priority
	handler  Handler
}

// Bus is the event bus. The zero value is not usable, use New.
type Bus struct {
	log      *logrus.Entry
	metrics  *metrics.Metrics
	maxDepth int

	lock sync.RWMutex
	subs map[event.Source][]subscriber
}

// Option configures a Bus
type Option func(*Bus)

// WithLogger sets the logger
func WithLogger(l *logrus.Entry) Option {
	return func(b *Bus) { b.log = l }
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// WithMaxDepth sets the publish recursion limit
func WithMaxDepth(d int) Option {
	return func(b *Bus) { b.maxDepth = d }
}

// New creates a bus
func New(opts ...Option) *Bus {
	b := &Bus{
		log:      logrus.NewEntry(logrus.StandardLogger()).WithField("module", "bus"),
		maxDepth: DefaultMaxDepth,
		subs:     make(map[event.Source][]subscriber),
	}

	for _, o := range opts {
		o(b)
	}

	return b
}

// Subscribe registers h for events from the given sources. Subscribing to
// no source is a no-op.
func (b *Bus) Subscribe(name string, p Priority, h Handler, sources ...event.Source) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, s := range sources {
		subs := b.subs[s]
		// keep the slice sorted by priority, stable on registration order
		i := len(subs)
		for i > 0 && subs[i-1].priority > p {
			i--
		}
		// publishers may hold the old slice, so always build a new one
		n := make([]subscriber, 0, len(subs)+1)
		n = append(n, subs[:i]...)
		n = append(n, subscriber{name: name, priority: p, handler: h})
		n = append(n, subs[i:]...)
		b.subs[s] = n
	}
}

// Publish delivers ev to every subscriber of its source.
func (b *Bus) Publish(ev event.Event) {
	b.publish(ev, 0)
}

func (b *Bus) publish(ev event.Event, depth int) {
	if depth > b.maxDepth {
		b.log.Errorf("Publish depth %v exceeded, dropping %v", b.maxDepth, event.Name(ev))
		b.metrics.Dropped()
		return
	}

	b.lock.RLock()
	subs := b.subs[ev.Source()]
	b.lock.RUnlock()

	b.metrics.Published(ev.Source().String())

	next := nested{bus: b, depth: depth + 1}
	for _, s := range subs {
		s.handler(next, ev)
	}
}

// Subscribers returns the subscriber names for a source in delivery order
func (b *Bus) Subscribers(s event.Source) []string {
	b.lock.RLock()
	defer b.lock.RUnlock()

	var ret []string
	for _, sub := range b.subs[s] {
		ret = append(ret, sub.name)
	}
	return ret
}

type nested struct {
	bus   *Bus
	depth int
}

func (n nested) Publish(ev event.Event) {
	n.bus.publish(ev, n.depth)
}
