package testutil

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"
	"time"
)

// IOSim simulates a serial port. NewIOSim returns both ends so code using
// an io.ReadWriteCloser can be tested against a simulated device.
type IOSim struct {
	out       *bytes.Buffer
	in        *bytes.Buffer
	m         *sync.Mutex
	stop      chan struct{}
	closeOnce sync.Once
}

// NewIOSim creates the A and B side of a simulated port
func NewIOSim() (*IOSim, *IOSim) {
	var a2b bytes.Buffer
	var b2a bytes.Buffer
	var m sync.Mutex

	a := IOSim{out: &b2a, in: &a2b, m: &m, stop: make(chan struct{})}
	b := IOSim{out: &a2b, in: &b2a, m: &m, stop: make(chan struct{})}

	return &a, &b
}

func (ios *IOSim) Write(d []byte) (int, error) {
	ios.m.Lock()
	defer ios.m.Unlock()
	return ios.in.Write(d)
}

// Read blocks until there is data or the port is closed.
func (ios *IOSim) Read(d []byte) (int, error) {
	for {
		ios.m.Lock()
		if ios.out.Len() > 0 {
			n, err := ios.out.Read(d)
			ios.m.Unlock()
			return n, err
		}
		ios.m.Unlock()

		select {
		case <-time.After(time.Millisecond):
		case <-ios.stop:
			return 0, io.EOF
		}
	}
}

// Close the simulated port
func (ios *IOSim) Close() error {
	ios.closeOnce.Do(func() { close(ios.stop) })
	return nil
}

// Respond reads "\r" or "\n" terminated commands from the port and writes
// back whatever fn returns. It returns when the port is closed.
func (ios *IOSim) Respond(fn func(cmd string) string) {
	scanner := bufio.NewScanner(ios)
	scanner.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			return i + 1, data[:i], nil
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	})

	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			continue
		}
		resp := fn(cmd)
		if resp != "" {
			_, _ = ios.Write([]byte(resp))
		}
	}
}
