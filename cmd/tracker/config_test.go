package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/simpleiot/assettracker/aggregate"
	"github.com/simpleiot/assettracker/data"
	"github.com/simpleiot/assettracker/store"
)

func TestDeviceID(t *testing.T) {
	settings := store.NewMemory()

	id, err := deviceID(Options{}, settings)
	if err != nil {
		t.Fatal(err)
	}
	if len(id) != 36 {
		t.Error("not a uuid: ", id)
	}

	again, _ := deviceID(Options{}, settings)
	if again != id {
		t.Error("device ID not stored")
	}

	if fixed, _ := deviceID(Options{DeviceID: "truck-7"}, settings); fixed != "truck-7" {
		t.Error("configured ID not used: ", fixed)
	}
}

func TestSeedConfig(t *testing.T) {
	settings := store.NewMemory()

	first := data.DefaultConfig()
	first.ActiveWait = 30
	if err := seedConfig(first, settings); err != nil {
		t.Fatal(err)
	}

	// a stored configuration is kept
	if err := seedConfig(data.DefaultConfig(), settings); err != nil {
		t.Fatal(err)
	}

	buf, err := settings.Load(aggregate.ConfigKey)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(buf), `"actw":30`) {
		t.Error("seeded config overwritten: ", string(buf))
	}
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer
	if err := runConfig([]string{"-dataDir", dir}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "no configuration stored") ||
		!strings.Contains(out.String(), "actw: 120") {
		t.Error("defaults: ", out.String())
	}

	out.Reset()
	if err := runConfig([]string{"-dataDir", dir, "-set", "actw: 60"}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "# new Active timeout: 60") {
		t.Error("change not reported: ", out.String())
	}

	out.Reset()
	if err := runConfig([]string{"-dataDir", dir}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "actw: 60") {
		t.Error("change not stored: ", out.String())
	}
}
