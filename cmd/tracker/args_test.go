package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"gpsPort":         "TRACKER_GPS_PORT",
		"deviceID":        "TRACKER_DEVICE_ID",
		"server":          "TRACKER_SERVER",
		"gracefulTimeout": "TRACKER_GRACEFUL_TIMEOUT",
	}

	for in, exp := range tests {
		if got := envName(in); got != exp {
			t.Errorf("%v: expected %v, got %v", in, exp, got)
		}
	}
}

func TestArgsDefaults(t *testing.T) {
	o, err := Args(nil, func(string) string { return "" })
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(defaultOptions(), o); diff != "" {
		t.Error("defaults: ", diff)
	}
}

func TestArgsPriority(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tracker.yaml")
	err := os.WriteFile(file, []byte(`
transport: nats
server: nats://file:4222
gpsPort: /dev/gps-file
quorumTimeout: 10s
device:
  act: false
  actw: 300
`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	env := map[string]string{
		"TRACKER_CONFIG":   file,
		"TRACKER_SERVER":   "nats://env:4222",
		"TRACKER_GPS_PORT": "/dev/gps-env",
		"TRACKER_SIM":      "true",
	}

	o, err := Args([]string{"-gpsPort", "/dev/gps-flag", "-logLevel", "debug"},
		func(k string) string { return env[k] })
	if err != nil {
		t.Fatal(err)
	}

	exp := defaultOptions()
	exp.ConfigFile = file
	exp.Transport = "nats"
	exp.Server = "nats://env:4222"
	exp.GPSPort = "/dev/gps-flag"
	exp.LogLevel = "debug"
	exp.Sim = true
	exp.QuorumTimeout = 10 * time.Second
	exp.Device.Active = false
	exp.Device.ActiveWait = 300

	if diff := cmp.Diff(exp, o); diff != "" {
		t.Error("options: ", diff)
	}
}

func TestArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"unknown flag", []string{"-nope"}, nil},
		{"bad env", nil, map[string]string{"TRACKER_GPS_BAUD": "fast"}},
		{"missing file", []string{"-config", "/does/not/exist.yaml"}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Args(tc.args, func(k string) string { return tc.env[k] })
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}
