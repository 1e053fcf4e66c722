package module

import (
	"sync"
	"sync/atomic"

	"github.com/simpleiot/assettracker/metrics"
)

// Registry counts the modules that started. The count only grows; modules
// never stop before a reboot.
type Registry struct {
	live    atomic.Int64
	metrics *metrics.Metrics

	lock  sync.Mutex
	names []string
}

// NewRegistry creates an empty registry
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{metrics: m}
}

// Start records a module as live and returns the new count
func (r *Registry) Start(name string) int64 {
	r.lock.Lock()
	r.names = append(r.names, name)
	r.lock.Unlock()

	n := r.live.Add(1)
	r.metrics.Live(n)
	return n
}

// Live returns the number of started modules
func (r *Registry) Live() int64 {
	return r.live.Load()
}

// Names returns the started modules in start order
func (r *Registry) Names() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string{}, r.names...)
}
