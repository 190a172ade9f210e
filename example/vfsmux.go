package example

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/juju/errors"
	"github.com/macos-fuse-t/go-vfsmux/bonjour"
	"github.com/macos-fuse-t/go-vfsmux/config"
	"github.com/macos-fuse-t/go-vfsmux/console"
	"github.com/macos-fuse-t/go-vfsmux/eventfd"
	"github.com/macos-fuse-t/go-vfsmux/hostfs"
	"github.com/macos-fuse-t/go-vfsmux/mux"
	"github.com/macos-fuse-t/go-vfsmux/serialdev"
	"github.com/macos-fuse-t/go-vfsmux/sockfs"
	"github.com/macos-fuse-t/go-vfsmux/stats"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// System is a manager with the drivers of a configuration mounted on it.
type System struct {
	Manager *mux.Manager
	Stats   *stats.Collector
	Eventfd *eventfd.Driver
	Sockets *sockfs.Driver

	srv *http.Server
}

// Setup creates the manager and mounts cfg.Mounts. The console is mounted
// first since it needs descriptors 0..2.
func Setup(cfg config.AppConfig) (*System, error) {
	s := &System{Stats: stats.NewCollector()}
	s.Manager = mux.New(mux.Options{
		MaxFDs:     cfg.MaxFDs,
		MaxDrivers: cfg.MaxDrivers,
		TickPeriod: cfg.Tick,
		Stats:      s.Stats,
	})

	ordered := make([]config.Mount, 0, len(cfg.Mounts))
	for _, mnt := range cfg.Mounts {
		if mnt.Type == config.MountConsole {
			ordered = append([]config.Mount{mnt}, ordered...)
		} else {
			ordered = append(ordered, mnt)
		}
	}

	for _, mnt := range ordered {
		if err := s.mount(mnt); err != nil {
			s.Close()
			return nil, errors.Annotatef(err, "mount %q", mnt.Name)
		}
	}
	return s, nil
}

func (s *System) mount(mnt config.Mount) error {
	m := s.Manager
	switch mnt.Type {
	case config.MountHost:
		_, err := m.Register(mnt.Prefix, hostfs.NewPassthroughFS(mnt.Root).Ops(), mnt.ReadOnly)
		return err
	case config.MountSerial:
		_, err := m.Register(mnt.Prefix, serialdev.New(mnt.Device, mnt.Baud).Ops(), mnt.ReadOnly)
		return err
	case config.MountConsole:
		_, err := console.NewStdio().Mount(m, mnt.Prefix)
		return err
	case config.MountEventfd:
		if s.Eventfd != nil {
			return errors.Errorf("eventfd already mounted")
		}
		d, err := eventfd.Register(m, mnt.MaxEvents)
		if err != nil {
			return err
		}
		s.Eventfd = d
		return nil
	case config.MountSocket:
		d, err := sockfs.Register(m, mnt.MinFD, mnt.MaxFD)
		if err != nil {
			return err
		}
		s.Sockets = d
		return nil
	}
	return errors.Errorf("unknown mount type %q", mnt.Type)
}

// ServeStats starts the stats server on addr and returns its address.
func (s *System) ServeStats(addr string) (string, error) {
	srv, bound, err := stats.StatServer(addr, stats.NewHandler(s.Stats, s.Manager))
	if err != nil {
		return "", err
	}
	s.srv = srv
	return bound.String(), nil
}

// Close stops the stats server and unregisters every driver.
func (s *System) Close() {
	if s.srv != nil {
		s.srv.Shutdown(context.Background())
		s.srv = nil
	}
	if s.Sockets != nil {
		if err := s.Sockets.Unregister(); err != nil {
			log.Errorf("sockfs unregister: %v", err)
		}
		s.Sockets = nil
	}
	if s.Eventfd != nil {
		if err := s.Eventfd.Unregister(); err != nil {
			log.Errorf("eventfd unregister: %v", err)
		}
		s.Eventfd = nil
	}
	s.Manager.Shutdown()
}

func Run(cfg config.AppConfig) error {
	InitLogs(cfg)

	s, err := Setup(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if log.IsLevelEnabled(log.DebugLevel) {
		var b strings.Builder
		s.Manager.DumpRegisteredPaths(&b)
		log.Debugf("registered paths:\n%s", b.String())
	}

	if cfg.StatsAddr != "" {
		addr, err := s.ServeStats(cfg.StatsAddr)
		if err != nil {
			return err
		}
		if cfg.Advertise {
			if err := bonjour.Advertise(addr, cfg.Hostname, cfg.Hostname, []string{"/fds", "/paths", "/reset"}); err != nil {
				log.Errorf("advertise: %v", err)
			}
			defer bonjour.Shutdown()
		}
	}

	WaitSignal()
	return nil
}

func InitLogs(cfg config.AppConfig) {
	log.Infof("debug level %v", cfg.Debug)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if !cfg.Console {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, //days
			Compress:   true,
		})
	} else {
		log.SetOutput(os.Stdout)
	}
}

func WaitSignal() {
	handler := make(chan os.Signal, 1)
	signal.Notify(handler, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(handler)
	sig := <-handler
	log.Infof("got %v, shutting down", sig)
}
