package module

import (
	"fmt"
	"sync"

	"github.com/oklog/run"
)

// RunStop is implemented by every module. Run blocks until Stop is called
// or the module fails.
type RunStop interface {
	Run() error
	Stop(error)
}

// RunGroup runs modules and helper actors together. The first actor to
// return interrupts all others; its error is the group's result.
type RunGroup struct {
	name  string
	stop  chan struct{}
	once  sync.Once
	group run.Group
}

// NewRunGroup creates an empty group
func NewRunGroup(name string) *RunGroup {
	return &RunGroup{name: name, stop: make(chan struct{})}
}

// Add a module. An error returned by it is prefixed with the module type.
func (g *RunGroup) Add(m RunStop) {
	g.group.Add(func() error {
		if err := m.Run(); err != nil {
			return fmt.Errorf("%v: %T: %w", g.name, m, err)
		}
		return nil
	}, m.Stop)
}

// AddFunc adds an actor that is not a module, like a signal handler. Its
// error is returned unchanged.
func (g *RunGroup) AddFunc(execute func() error, interrupt func(error)) {
	g.group.Add(execute, interrupt)
}

// Run blocks until an actor returns or Stop is called. All actors must be
// added before. A group runs once.
func (g *RunGroup) Run() error {
	g.group.Add(func() error {
		<-g.stop
		return nil
	}, g.Stop)

	return g.group.Run()
}

// Stop the group
func (g *RunGroup) Stop(_ error) {
	g.once.Do(func() { close(g.stop) })
}
