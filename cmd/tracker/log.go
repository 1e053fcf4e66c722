package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/simpleiot/assettracker/bus"
)

func runLog(args []string) error {
	defaultServer := "nats://localhost:4222"
	flags := flag.NewFlagSet("log", flag.ExitOnError)
	flagServer := flags.String("server", defaultServer, "NATS server the tracker mirrors to")
	flagDevice := flags.String("device", "*", "device ID, * for all devices")
	flagToken := flags.String("token", "", "auth token")

	if err := flags.Parse(args); err != nil {
		return err
	}

	// only consider env if command line option is something different
	// that default
	server := *flagServer
	if server == defaultServer {
		if s := os.Getenv("TRACKER_MIRROR"); s != "" {
			server = s
		}
	}

	opts := []nats.Option{nats.Name("tracker-log")}
	if *flagToken != "" {
		opts = append(opts, nats.Token(*flagToken))
	}

	nc, err := nats.Connect(server, opts...)
	if err != nil {
		return err
	}
	defer nc.Close()

	subject := bus.MirrorWildcard(*flagDevice)
	_, err = nc.Subscribe(subject, func(msg *nats.Msg) {
		var m bus.MirrorMsg
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			fmt.Printf("%v: error decoding: %v\n", msg.Subject, err)
			return
		}
		fmt.Printf("%v %v.%v %s\n", m.Time.Format("15:04:05.000"), m.Source, m.Kind, m.Event)
	})
	if err != nil {
		return err
	}

	fmt.Println("Listening on", subject)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	return nil
}
