package mux

import (
	"time"

	"github.com/macos-fuse-t/go-vfsmux/stats"
	"github.com/macos-fuse-t/go-vfsmux/vfs"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxFDs     = 64
	DefaultMaxDrivers = 8
	DefaultTickPeriod = 10 * time.Millisecond
)

type Options struct {
	// MaxFDs bounds the global descriptor table. It is capped at
	// vfs.FdSetSize so every descriptor fits an FdSet.
	MaxFDs int
	// MaxDrivers bounds the number of mounted drivers.
	MaxDrivers int
	// TickPeriod is the granularity select timeouts are rounded up to.
	TickPeriod time.Duration
	Stats      *stats.Collector
}

// Manager multiplexes POSIX-style calls over the registered drivers. It owns
// the driver registry and the global descriptor table.
type Manager struct {
	registry *registry
	fds      *fdTable
	tick     time.Duration
	stats    *stats.Collector

	newSemaphore func() (*vfs.BinarySemaphore, error)
}

func New(opts Options) *Manager {
	if opts.MaxFDs <= 0 {
		opts.MaxFDs = DefaultMaxFDs
	}
	if opts.MaxFDs > vfs.FdSetSize {
		opts.MaxFDs = vfs.FdSetSize
	}
	if opts.MaxDrivers <= 0 {
		opts.MaxDrivers = DefaultMaxDrivers
	}
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = DefaultTickPeriod
	}

	log.Debugf("vfs manager: %d fds, %d drivers, tick %v", opts.MaxFDs, opts.MaxDrivers, opts.TickPeriod)

	return &Manager{
		registry: newRegistry(opts.MaxDrivers),
		fds:      newFDTable(opts.MaxFDs),
		tick:     opts.TickPeriod,
		stats:    opts.Stats,
		newSemaphore: func() (*vfs.BinarySemaphore, error) {
			return vfs.NewBinarySemaphore(), nil
		},
	}
}

// MaxFDs returns the size of the global descriptor table.
func (m *Manager) MaxFDs() int {
	return m.fds.size()
}

// Shutdown unregisters every driver. Descriptors still open are dropped
// without calling the drivers.
func (m *Manager) Shutdown() {
	for _, d := range m.registry.snapshot() {
		if d == nil {
			continue
		}
		if err := m.Unregister(d.index); err != nil {
			log.Errorf("shutdown: unregister %s: %v", d.name(), err)
		}
	}
}
