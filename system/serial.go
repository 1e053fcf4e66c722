package system

import (
	"io"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// OpenSerial opens a serial port 8N1 at baud
func OpenSerial(name string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening serial port %v", name)
	}

	return port, nil
}
