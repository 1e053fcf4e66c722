package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"

	"github.com/simpleiot/assettracker/aggregate"
	"github.com/simpleiot/assettracker/data"
	"github.com/simpleiot/assettracker/store"
)

// runConfig prints the stored device configuration as YAML. With -set it
// first applies a YAML document like "actw: 60" on top of it. The tracker
// must not be running when the bolt store is used.
func runConfig(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("config", flag.ContinueOnError)
	flagDataDir := flags.String("dataDir", "./", "directory of the settings store")
	flagStore := flags.String("store", "bolt", "settings store: bolt, sqlite")
	flagSet := flags.String("set", "", "YAML fields to change")

	if err := flags.Parse(args); err != nil {
		return err
	}

	settings, err := store.Open(store.Type(*flagStore), *flagDataDir)
	if err != nil {
		return err
	}
	defer settings.Close()

	cfg := data.DefaultConfig()
	buf, err := settings.Load(aggregate.ConfigKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintln(out, "# no configuration stored, showing defaults")
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(buf, &cfg); err != nil {
			return fmt.Errorf("stored configuration is corrupt: %w", err)
		}
	}

	if *flagSet != "" {
		in := cfg
		if err := yaml.Unmarshal([]byte(*flagSet), &in); err != nil {
			return fmt.Errorf("error parsing -set: %w", err)
		}
		var changes []data.ConfigChange
		cfg, changes = cfg.Apply(in)
		for _, c := range changes {
			fmt.Fprintf(out, "# new %v: %v\n", c.Field, c.Value)
		}
		buf, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		if err := settings.Save(aggregate.ConfigKey, buf); err != nil {
			return err
		}
	}

	y, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = out.Write(y)
	return err
}
