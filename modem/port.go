package modem

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// AT command errors
var (
	ErrCmdError   = errors.New("command returned ERROR")
	ErrCmdTimeout = errors.New("command timeout")
	ErrPortClosed = errors.New("port closed")
)

// atPort frames AT command responses. Input is split into lines by a
// goroutine that lives as long as the port, since a blocked Read cannot
// be stopped. A response ends with a final result code.
type atPort struct {
	port    io.ReadWriteCloser
	timeout time.Duration
	lines   chan string

	// one command at a time
	lock sync.Mutex
}

func newATPort(port io.ReadWriteCloser, timeout time.Duration) *atPort {
	p := &atPort{
		port:    port,
		timeout: timeout,
		lines:   make(chan string, 16),
	}
	go p.readLines()
	return p
}

func (p *atPort) readLines() {
	scanner := bufio.NewScanner(p.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.lines <- line
	}
	close(p.lines)
}

// flush drops unsolicited lines left from before the command
func (p *atPort) flush() error {
	for {
		select {
		case _, ok := <-p.lines:
			if !ok {
				return ErrPortClosed
			}
		default:
			return nil
		}
	}
}

// Cmd sends cmd and returns the response lines without the echo and the
// final result code.
func (p *atPort) Cmd(cmd string) ([]string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.flush(); err != nil {
		return nil, err
	}

	if _, err := p.port.Write([]byte(cmd + "\r")); err != nil {
		return nil, errors.Wrapf(err, "error writing %v", cmd)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	var resp []string
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return resp, ErrPortClosed
			}
			switch {
			case line == "OK":
				return resp, nil
			case line == "ERROR",
				strings.HasPrefix(line, "+CME ERROR"),
				strings.HasPrefix(line, "+CMS ERROR"):
				return resp, errors.Wrapf(ErrCmdError, "%v: %v", cmd, line)
			case line == cmd:
				// echo
			default:
				resp = append(resp, line)
			}
		case <-timer.C:
			return resp, errors.Wrap(ErrCmdTimeout, cmd)
		}
	}
}

// CmdRetry tries cmd up to three times. A command the modem rejects is
// not retried.
func (p *atPort) CmdRetry(cmd string) ([]string, error) {
	var err error
	for try := 0; try < 3; try++ {
		var resp []string
		resp, err = p.Cmd(cmd)
		if err == nil || errors.Is(err, ErrCmdError) || errors.Is(err, ErrPortClosed) {
			return resp, err
		}
	}
	return nil, err
}

func (p *atPort) Close() error {
	return p.port.Close()
}
