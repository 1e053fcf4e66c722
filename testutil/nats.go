// Package testutil contains helpers shared by the tracker tests.
package testutil

import (
	"errors"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// NatsServer starts an embedded nats server on a random port. Call
// Shutdown on the returned server when done.
func NatsServer() (*server.Server, error) {
	opts := server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	s, err := server.NewServer(&opts)
	if err != nil {
		return nil, err
	}

	go s.Start()

	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		return nil, errors.New("nats server not ready")
	}

	return s, nil
}

// NatsConnect starts an embedded server and connects to it. The returned
// function closes the connection and stops the server.
func NatsConnect() (*nats.Conn, string, func(), error) {
	s, err := NatsServer()
	if err != nil {
		return nil, "", nil, err
	}

	nc, err := nats.Connect(s.ClientURL())
	if err != nil {
		s.Shutdown()
		return nil, "", nil, err
	}

	return nc, s.ClientURL(), func() {
		nc.Close()
		s.Shutdown()
	}, nil
}
