package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/oklog/run"
)

// goreleaser will replace version with Git version. You can also pass version
// into the go build:
//
//	go build -ldflags="-X main.version=1.2.3"
var version = "0.0.0-dev"

// exit codes
const (
	exitError  = 1
	exitReboot = 2
)

func main() {
	// global options
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagVersion := flags.Bool("version", false, "Print app version")
	flags.Usage = func() {
		fmt.Println("usage: tracker [OPTION]... COMMAND [OPTION]...")
		fmt.Println("Global options:")
		flags.PrintDefaults()
		fmt.Println()
		fmt.Println("Available commands:")
		fmt.Println("  - run (start the tracker, default)")
		fmt.Println("  - log (print bus events mirrored by a running tracker)")
		fmt.Println("  - config (show or change the stored device configuration)")
	}

	_ = flags.Parse(os.Args[1:])

	if *flagVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// extract sub command and its arguments
	args := flags.Args()

	if len(args) < 1 {
		args = []string{"run"}
	}

	switch args[0] {
	case "run":
		os.Exit(runCmd(args[1:]))
	case "log":
		if err := runLog(args[1:]); err != nil {
			log.Fatal("log: ", err)
		}
	case "config":
		if err := runConfig(args[1:], os.Stdout); err != nil {
			log.Fatal("config: ", err)
		}
	default:
		log.Fatal("Unknown command; options: run, log, config")
	}
}

func runCmd(args []string) int {
	o, err := Args(args, nil)
	if err != nil {
		log.Println("Error parsing options: ", err)
		return exitError
	}

	err = runTracker(o, version)

	var sigErr run.SignalError
	var rebootErr RebootError
	switch {
	case err == nil, errors.As(err, &sigErr):
		log.Println("Tracker stopped: ", err)
		return 0
	case errors.As(err, &rebootErr):
		log.Println("Tracker rebooting: ", rebootErr.Reason)
		return exitReboot
	default:
		log.Println("Tracker stopped, reason: ", err)
		return exitError
	}
}
