package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/goccy/go-yaml"

	"github.com/simpleiot/assettracker/data"
)

// Options are the tracker settings. Values are taken from, in increasing
// priority: built-in defaults, the YAML config file, TRACKER_* environment
// variables, and command line flags.
type Options struct {
	ConfigFile string `yaml:"-"`

	DataDir  string `yaml:"dataDir"`
	Store    string `yaml:"store"`
	DeviceID string `yaml:"deviceID"`
	Board    string `yaml:"board"`

	LogLevel    string `yaml:"logLevel"`
	Syslog      bool   `yaml:"syslog"`
	MetricsAddr string `yaml:"metricsAddr"`
	Mirror      string `yaml:"mirror"`

	Transport string `yaml:"transport"`
	Server    string `yaml:"server"`
	Prefix    string `yaml:"prefix"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Token     string `yaml:"token"`
	Codec     string `yaml:"codec"`

	NTPServer string `yaml:"ntpServer"`
	SetClock  bool   `yaml:"setClock"`

	Sim    bool    `yaml:"sim"`
	SimLat float64 `yaml:"simLat"`
	SimLon float64 `yaml:"simLon"`

	GPSPort       string `yaml:"gpsPort"`
	GPSBaud       int    `yaml:"gpsBaud"`
	ModemPort     string `yaml:"modemPort"`
	ModemBaud     int    `yaml:"modemBaud"`
	ModemFirmware string `yaml:"modemFirmware"`
	HostSensor    string `yaml:"hostSensor"`
	TOFPort       string `yaml:"tofPort"`
	LED           string `yaml:"led"`
	ButtonDir     string `yaml:"buttonDir"`

	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	QuorumTimeout   time.Duration `yaml:"quorumTimeout"`

	// device configuration used until the cloud sends one
	Device data.Config `yaml:"device"`
}

func defaultOptions() Options {
	return Options{
		DataDir:         "./",
		Store:           "bolt",
		Board:           "linux",
		LogLevel:        "info",
		Transport:       "mqtt",
		Server:          "tcp://localhost:1883",
		Prefix:          "tracker",
		Codec:           "json",
		GPSPort:         "/dev/ttyACM0",
		GPSBaud:         9600,
		ModemPort:       "/dev/ttyUSB2",
		ModemBaud:       115200,
		SimLat:          63.4305,
		SimLon:          10.3951,
		GracefulTimeout: 60 * time.Second,
		QuorumTimeout:   5 * time.Second,
		Device:          data.DefaultConfig(),
	}
}

// bind registers every option flag on fs, storing values in o
func bind(fs *flag.FlagSet, o *Options) {
	fs.StringVar(&o.ConfigFile, "config", o.ConfigFile, "YAML config file")
	fs.StringVar(&o.DataDir, "dataDir", o.DataDir, "directory for the settings store")
	fs.StringVar(&o.Store, "store", o.Store, "settings store: bolt, sqlite, or memory")
	fs.StringVar(&o.DeviceID, "deviceID", o.DeviceID, "device ID, generated and stored if empty")
	fs.StringVar(&o.Board, "board", o.Board, "board name reported to the cloud")
	fs.StringVar(&o.LogLevel, "logLevel", o.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&o.Syslog, "syslog", o.Syslog, "also log to syslog")
	fs.StringVar(&o.MetricsAddr, "metricsAddr", o.MetricsAddr, "serve prometheus metrics on this address")
	fs.StringVar(&o.Mirror, "mirror", o.Mirror, "NATS server to mirror bus events to")
	fs.StringVar(&o.Transport, "transport", o.Transport, "cloud transport: mqtt or nats")
	fs.StringVar(&o.Server, "server", o.Server, "cloud server URI")
	fs.StringVar(&o.Prefix, "prefix", o.Prefix, "cloud topic prefix")
	fs.StringVar(&o.Username, "username", o.Username, "MQTT user name")
	fs.StringVar(&o.Password, "password", o.Password, "MQTT password")
	fs.StringVar(&o.Token, "token", o.Token, "NATS auth token")
	fs.StringVar(&o.Codec, "codec", o.Codec, "payload encoding: json or proto")
	fs.StringVar(&o.NTPServer, "ntpServer", o.NTPServer, "NTP server")
	fs.BoolVar(&o.SetClock, "setClock", o.SetClock, "set the system clock when the time is obtained")
	fs.BoolVar(&o.Sim, "sim", o.Sim, "use simulated GPS, modem, and sensors")
	fs.Float64Var(&o.SimLat, "simLat", o.SimLat, "simulated latitude")
	fs.Float64Var(&o.SimLon, "simLon", o.SimLon, "simulated longitude")
	fs.StringVar(&o.GPSPort, "gpsPort", o.GPSPort, "GPS serial port")
	fs.IntVar(&o.GPSBaud, "gpsBaud", o.GPSBaud, "GPS baud rate")
	fs.StringVar(&o.ModemPort, "modemPort", o.ModemPort, "modem AT command serial port")
	fs.IntVar(&o.ModemBaud, "modemBaud", o.ModemBaud, "modem baud rate")
	fs.StringVar(&o.ModemFirmware, "modemFirmware", o.ModemFirmware, "expected modem firmware")
	fs.StringVar(&o.HostSensor, "hostSensor", o.HostSensor, "host temperature sensor key, \"any\" for the first")
	fs.StringVar(&o.TOFPort, "tofPort", o.TOFPort, "TOF10120 movement sensor serial port")
	fs.StringVar(&o.LED, "led", o.LED, "status LED name in /sys/class/leds")
	fs.StringVar(&o.ButtonDir, "buttonDir", o.ButtonDir, "directory watched for button files, signals are used if empty")
	fs.DurationVar(&o.GracefulTimeout, "gracefulTimeout", o.GracefulTimeout, "maximum time from shutdown request to reboot")
	fs.DurationVar(&o.QuorumTimeout, "quorumTimeout", o.QuorumTimeout, "reboot delay after all modules acknowledged")
}

// envName turns a flag name into its environment variable,
// gpsPort -> TRACKER_GPS_PORT
func envName(flagName string) string {
	var b strings.Builder
	b.WriteString("TRACKER_")
	runes := []rune(flagName)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(runes[i-1]) {
			b.WriteRune('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Args parses the run command options
func Args(args []string, getenv func(string) string) (Options, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	parsed := defaultOptions()
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	bind(flags, &parsed)

	if err := flags.Parse(args); err != nil {
		return Options{}, err
	}

	set := make(map[string]string)
	flags.Visit(func(f *flag.Flag) {
		set[f.Name] = f.Value.String()
	})

	o := defaultOptions()
	o.ConfigFile = parsed.ConfigFile
	if o.ConfigFile == "" {
		o.ConfigFile = getenv(envName("config"))
	}

	if o.ConfigFile != "" {
		buf, err := os.ReadFile(o.ConfigFile)
		if err != nil {
			return Options{}, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, &o); err != nil {
			return Options{}, fmt.Errorf("error parsing config file %v: %w", o.ConfigFile, err)
		}
	}

	apply := flag.NewFlagSet("apply", flag.ContinueOnError)
	bind(apply, &o)

	var err error
	apply.VisitAll(func(f *flag.Flag) {
		if err != nil {
			return
		}
		if v := getenv(envName(f.Name)); v != "" {
			if e := apply.Set(f.Name, v); e != nil {
				err = fmt.Errorf("error parsing %v: %w", envName(f.Name), e)
			}
		}
	})
	if err != nil {
		return Options{}, err
	}

	for name, v := range set {
		if err := apply.Set(name, v); err != nil {
			return Options{}, err
		}
	}

	return o, nil
}
