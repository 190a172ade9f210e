package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/juju/errors"
	"github.com/spf13/pflag"
)

const (
	MountHost    = "host"
	MountEventfd = "eventfd"
	MountSocket  = "socket"
	MountSerial  = "serial"
	MountConsole = "console"
)

// Mount describes one driver to register at startup.
type Mount struct {
	Name     string
	Type     string
	Prefix   string
	Root     string
	ReadOnly bool
	// serial
	Device string
	Baud   int
	// eventfd
	MaxEvents int
	// socket
	MinFD int
	MaxFD int
}

type AppConfig struct {
	Debug      bool
	Console    bool
	LogFile    string
	MaxFDs     int
	MaxDrivers int
	Tick       time.Duration
	StatsAddr  string
	Advertise  bool
	Hostname   string
	Mounts     []Mount
}

func defaultConfig() AppConfig {
	cfg := AppConfig{
		Debug:      false,
		Console:    true,
		MaxFDs:     64,
		MaxDrivers: 8,
		Tick:       10 * time.Millisecond,
		StatsAddr:  "127.0.0.1:8082",
		Advertise:  false,
		Hostname:   "VfsMux",
	}
	homeDir, _ := os.UserHomeDir()
	cfg.LogFile = homeDir + "/vfsmux.log"
	return cfg
}

func loadMount(s *ini.Section) (Mount, error) {
	name := strings.Trim(strings.TrimPrefix(s.Name(), "mount"), " \"")
	m := Mount{
		Name:      name,
		Type:      s.Key("type").MustString(MountHost),
		Prefix:    s.Key("prefix").String(),
		Root:      s.Key("root").String(),
		ReadOnly:  s.Key("readonly").MustBool(false),
		Device:    s.Key("device").String(),
		Baud:      s.Key("baud").MustInt(115200),
		MaxEvents: s.Key("max_events").MustInt(5),
		MinFD:     s.Key("min_fd").MustInt(-1),
		MaxFD:     s.Key("max_fd").MustInt(-1),
	}

	switch m.Type {
	case MountHost:
		if m.Prefix == "" || m.Root == "" {
			return m, errors.Errorf("mount %q: host mount needs prefix and root", name)
		}
	case MountSerial:
		if m.Prefix == "" || m.Device == "" {
			return m, errors.Errorf("mount %q: serial mount needs prefix and device", name)
		}
	case MountConsole:
		if m.Prefix == "" {
			m.Prefix = "/dev/console"
		}
	case MountSocket:
		if m.MinFD < 0 || m.MaxFD < m.MinFD {
			return m, errors.Errorf("mount %q: bad descriptor range %d..%d", name, m.MinFD, m.MaxFD)
		}
	case MountEventfd:
	default:
		return m, errors.Errorf("mount %q: unknown type %q", name, m.Type)
	}
	return m, nil
}

// NewConfig loads the first readable ini file of iniFiles and then applies
// the command line flags in args on top of it.
func NewConfig(iniFiles []string, args []string) (AppConfig, error) {
	cfg := defaultConfig()

	var f *ini.File
	var err error
	for _, file := range iniFiles {
		if f, err = ini.Load(file); err == nil {
			break
		}
	}

	if f != nil && err == nil {
		if s, err := f.GetSection("Default"); err == nil {
			if v, err := s.Key("debug").Bool(); err == nil {
				cfg.Debug = v
			}
			if v, err := s.Key("console").Bool(); err == nil {
				cfg.Console = v
			}
			if v := s.Key("log_file").String(); v != "" {
				cfg.LogFile = v
			}
			cfg.MaxFDs = s.Key("max_fds").MustInt(cfg.MaxFDs)
			cfg.MaxDrivers = s.Key("max_drivers").MustInt(cfg.MaxDrivers)
			cfg.Tick = s.Key("tick").MustDuration(cfg.Tick)
			cfg.StatsAddr = s.Key("stats_addr").MustString(cfg.StatsAddr)
			cfg.Advertise = s.Key("advertise").MustBool(cfg.Advertise)
			cfg.Hostname = s.Key("hostname").MustString(cfg.Hostname)
		}

		for _, s := range f.Sections() {
			if !strings.HasPrefix(s.Name(), "mount") {
				continue
			}
			m, err := loadMount(s)
			if err != nil {
				return cfg, errors.Annotate(err, "config")
			}
			cfg.Mounts = append(cfg.Mounts, m)
		}
	}

	fs := pflag.NewFlagSet("vfsmux", pflag.ContinueOnError)
	fs.BoolVarP(&cfg.Debug, "debug", "d", cfg.Debug, "debug mode")
	fs.BoolVarP(&cfg.Console, "console", "c", cfg.Console, "output logs to console")
	fs.StringVar(&cfg.LogFile, "log_file", cfg.LogFile, "log file used when not logging to console")
	fs.IntVar(&cfg.MaxFDs, "max_fds", cfg.MaxFDs, "size of the global descriptor table")
	fs.IntVar(&cfg.MaxDrivers, "max_drivers", cfg.MaxDrivers, "max registered drivers")
	fs.DurationVar(&cfg.Tick, "tick", cfg.Tick, "select timeout granularity")
	fs.StringVarP(&cfg.StatsAddr, "stats_addr", "s", cfg.StatsAddr, "stats server listen address, empty to disable")
	fs.BoolVarP(&cfg.Advertise, "advertise", "a", cfg.Advertise, "advertise the stats server")
	fs.StringVarP(&cfg.Hostname, "hostname", "h", cfg.Hostname, "hostname to display")
	if err := fs.Parse(args); err != nil {
		return cfg, errors.Annotate(err, "config")
	}

	return cfg, nil
}
