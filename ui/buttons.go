package ui

import (
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Signals maps SIGUSR1 to button 1 and SIGUSR2 to button 2
type Signals struct {
	c chan os.Signal
}

// NewSignals creates a signal button driver
func NewSignals() *Signals {
	return &Signals{c: make(chan os.Signal, 1)}
}

// Init implements Buttons
func (s *Signals) Init(handler func(button int)) error {
	signal.Notify(s.c, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range s.c {
			if sig == syscall.SIGUSR2 {
				handler(2)
			} else {
				handler(1)
			}
		}
	}()
	return nil
}

// Close stops signal delivery
func (s *Signals) Close() {
	signal.Stop(s.c)
	close(s.c)
}

// Files watches a directory. Creating a file named button<n> in it
// presses button n; the file is removed again.
type Files struct {
	dir string
	log *logrus.Entry

	watcher *fsnotify.Watcher
}

// NewFiles creates a file button driver for dir
func NewFiles(dir string, log *logrus.Entry) *Files {
	return &Files{dir: dir, log: log}
}

// Init implements Buttons
func (f *Files) Init(handler func(button int)) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return errors.Wrap(err, "error creating button directory")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "error creating watcher")
	}

	if err := w.Add(f.dir); err != nil {
		w.Close()
		return errors.Wrapf(err, "error watching %v", f.dir)
	}
	f.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Create == 0 {
					continue
				}
				if b := buttonNumber(ev.Name); b > 0 {
					handler(b)
					if err := os.Remove(ev.Name); err != nil {
						f.log.WithError(err).Warn("Error removing button file")
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.log.WithError(err).Warn("Button watcher error")
			}
		}
	}()

	return nil
}

// Close stops watching
func (f *Files) Close() error {
	if f.watcher == nil {
		return nil
	}
	return f.watcher.Close()
}

func buttonNumber(path string) int {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "button") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, "button"))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
