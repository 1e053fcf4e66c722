// Package metrics holds the prometheus collectors shared by the tracker
// modules. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a set of collectors registered on a private registry
type Metrics struct {
	Registry *prometheus.Registry

	EventsPublished *prometheus.CounterVec
	BusDrops        prometheus.Counter
	QueuePurges     *prometheus.CounterVec
	ConnectAttempts prometheus.Counter
	CloudSends      *prometheus.CounterVec
	PendingDropped  prometheus.Counter
	ShutdownAcks    prometheus.Gauge
	LiveModules     prometheus.Gauge
}

// New creates and registers the tracker collectors
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_events_published_total",
			Help: "Events published on the bus",
		}, []string{"source"}),
		BusDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_bus_depth_drops_total",
			Help: "Events dropped because the publish recursion limit was hit",
		}),
		QueuePurges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_queue_purges_total",
			Help: "Module queues purged because they were full",
		}, []string{"module"}),
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_cloud_connect_attempts_total",
			Help: "Cloud connection attempts",
		}),
		CloudSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_cloud_sends_total",
			Help: "Payloads handed to the transport",
		}, []string{"endpoint", "result"}),
		PendingDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_pending_dropped_total",
			Help: "Payloads sent without a free pending slot",
		}),
		ShutdownAcks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_shutdown_acks",
			Help: "Shutdown acknowledgments received",
		}),
		LiveModules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_live_modules",
			Help: "Modules that registered as running",
		}),
	}

	m.Registry.MustRegister(
		m.EventsPublished,
		m.BusDrops,
		m.QueuePurges,
		m.ConnectAttempts,
		m.CloudSends,
		m.PendingDropped,
		m.ShutdownAcks,
		m.LiveModules,
		collectors.NewGoCollector(),
	)

	return m
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Published counts a published event
func (m *Metrics) Published(source string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(source).Inc()
}

// Dropped counts an event dropped by the bus
func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.BusDrops.Inc()
}

// Purged counts a purged module queue
func (m *Metrics) Purged(module string) {
	if m == nil {
		return
	}
	m.QueuePurges.WithLabelValues(module).Inc()
}

// Connecting counts a connect attempt
func (m *Metrics) Connecting() {
	if m == nil {
		return
	}
	m.ConnectAttempts.Inc()
}

// Sent counts a transport send
func (m *Metrics) Sent(endpoint string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CloudSends.WithLabelValues(endpoint, result).Inc()
}

// PendingDrop counts a payload that could not be tracked
func (m *Metrics) PendingDrop() {
	if m == nil {
		return
	}
	m.PendingDropped.Inc()
}

// ShutdownAck records the number of shutdown acknowledgments
func (m *Metrics) ShutdownAck(count int) {
	if m == nil {
		return
	}
	m.ShutdownAcks.Set(float64(count))
}

// Live records the number of live modules
func (m *Metrics) Live(count int64) {
	if m == nil {
		return
	}
	m.LiveModules.Set(float64(count))
}
