package mux

import (
	"fmt"
	"sync"

	"github.com/juju/errors"
	"github.com/macos-fuse-t/go-vfsmux/vfs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/sys/unix"
)

// ErrInvalidState is returned when unregistering an unknown driver or when a
// second socket driver is registered.
var ErrInvalidState = errors.New("invalid state")

type driver struct {
	index    int
	prefix   string
	pathless bool
	readOnly bool
	ops      *vfs.Ops
}

func (d *driver) name() string {
	switch {
	case d.pathless:
		return fmt.Sprintf("#%d", d.index)
	case d.prefix == "":
		return "<default>"
	}
	return d.prefix
}

// translatePath returns the part of path the driver sees. It never copies.
func (d *driver) translatePath(path string) string {
	if d.prefix == "" {
		return path
	}
	rest := path[len(d.prefix):]
	if rest == "" {
		return "/"
	}
	return rest
}

type registry struct {
	mu      sync.Mutex
	drivers []*driver
	max     int
	socket  *driver
}

func newRegistry(max int) *registry {
	return &registry{max: max}
}

func validPrefix(prefix string) bool {
	n := len(prefix)
	if n == 0 {
		return true
	}
	if n < 2 || n > vfs.PathMax {
		return false
	}
	return prefix[0] == '/' && prefix[n-1] != '/'
}

func (r *registry) add(prefix string, pathless bool, ops *vfs.Ops, readOnly bool) (*driver, error) {
	if ops == nil {
		return nil, errors.Annotate(unix.EINVAL, "nil driver ops")
	}
	if ops.IsSocket() && ops.Select.SocketSemaphore == nil {
		return nil, errors.Annotate(unix.EINVAL, "socket select without a semaphore")
	}
	if !pathless && !validPrefix(prefix) {
		return nil, errors.Annotatef(unix.EINVAL, "invalid mount prefix %q", prefix)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !pathless {
		for _, d := range r.drivers {
			if d != nil && !d.pathless && d.prefix == prefix {
				return nil, errors.Annotatef(unix.EINVAL, "prefix %q already mounted", prefix)
			}
		}
	}
	if ops.IsSocket() && r.socket != nil {
		return nil, errors.Annotatef(ErrInvalidState, "socket driver already registered as %s", r.socket.name())
	}

	index := slices.Index(r.drivers, nil)
	if index < 0 {
		if len(r.drivers) >= r.max {
			return nil, errors.Annotatef(unix.ENOMEM, "driver registry full (%d)", r.max)
		}
		index = len(r.drivers)
		r.drivers = append(r.drivers, nil)
	}

	d := &driver{
		index:    index,
		prefix:   prefix,
		pathless: pathless,
		readOnly: readOnly,
		ops:      ops,
	}
	r.drivers[index] = d
	if ops.IsSocket() {
		r.socket = d
	}
	return d, nil
}

// remove drops the driver at index. release runs under the registry lock so
// the index cannot be handed out again before the descriptor table is purged.
func (r *registry) remove(index int, release func(d *driver)) (*driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.drivers) || r.drivers[index] == nil {
		return nil, errors.Annotatef(ErrInvalidState, "no driver with id %d", index)
	}
	d := r.drivers[index]
	r.drivers[index] = nil
	if r.socket == d {
		r.socket = nil
	}
	if release != nil {
		release(d)
	}
	return d, nil
}

func (r *registry) indexOfPrefix(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.drivers {
		if d != nil && !d.pathless && d.prefix == prefix {
			return d.index
		}
	}
	return -1
}

func (r *registry) byIndex(index int) *driver {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.drivers) {
		return nil
	}
	return r.drivers[index]
}

// byPath picks the longest prefix that matches path on a separator
// boundary, falling back to the driver mounted at "".
func (r *registry) byPath(path string) *driver {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *driver
	bestLen := -1
	for _, d := range r.drivers {
		if d == nil || d.pathless {
			continue
		}
		n := len(d.prefix)
		if len(path) < n || path[:n] != d.prefix {
			continue
		}
		if n == 0 {
			if best == nil {
				best = d
			}
			continue
		}
		// don't match "/data" for "/data1/foo.txt"
		if len(path) > n && path[n] != '/' {
			continue
		}
		if n > bestLen {
			best = d
			bestLen = n
		}
	}
	return best
}

func (r *registry) snapshot() []*driver {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*driver(nil), r.drivers...)
}

func (r *registry) socketDriver() *driver {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.socket
}

// Register mounts ops at prefix and returns the driver id. An empty prefix
// mounts the fallback driver that receives every path no other driver
// claims.
func (m *Manager) Register(prefix string, ops *vfs.Ops, readOnly bool) (int, error) {
	d, err := m.registry.add(prefix, false, ops, readOnly)
	if err != nil {
		log.Errorf("register %q: %v", prefix, err)
		return -1, err
	}
	log.Infof("mounted %s as driver %d (read-only %v)", d.name(), d.index, readOnly)
	return d.index, nil
}

// RegisterWithID adds a driver that is reachable only through descriptors
// bound with RegisterFD or RegisterFDWithLocalFD.
func (m *Manager) RegisterWithID(ops *vfs.Ops) (int, error) {
	d, err := m.registry.add("", true, ops, false)
	if err != nil {
		log.Errorf("register id: %v", err)
		return -1, err
	}
	log.Infof("registered driver %d without path", d.index)
	return d.index, nil
}

// RegisterFDRange adds a path-less driver that permanently owns the global
// descriptors minFD..maxFD, each mapped to the same local number.
func (m *Manager) RegisterFDRange(ops *vfs.Ops, minFD, maxFD int) (int, error) {
	if minFD < 0 || maxFD < minFD || maxFD >= m.fds.size() {
		return -1, errors.Annotatef(unix.EINVAL, "invalid descriptor range %d..%d", minFD, maxFD)
	}

	d, err := m.registry.add("", true, ops, false)
	if err != nil {
		log.Errorf("register fd range: %v", err)
		return -1, err
	}

	if err := m.fds.bindRange(d, minFD, maxFD); err != nil {
		if _, rerr := m.registry.remove(d.index, nil); rerr != nil {
			log.Errorf("register fd range %d..%d: rollback of driver %d: %v", minFD, maxFD, d.index, rerr)
		}
		log.Errorf("register fd range %d..%d: %v", minFD, maxFD, err)
		return -1, errors.Annotatef(err, "descriptor range %d..%d", minFD, maxFD)
	}
	log.Infof("registered driver %d for descriptors %d..%d", d.index, minFD, maxFD)
	return d.index, nil
}

// RegisterFD binds a new permanent global descriptor to driver id, using the
// global number as the local one.
func (m *Manager) RegisterFD(id int) (int, error) {
	return m.RegisterFDWithLocalFD(id, -1, true)
}

// RegisterFDWithLocalFD binds the lowest free global descriptor to localFD of
// driver id. A negative localFD reuses the global number.
func (m *Manager) RegisterFDWithLocalFD(id int, localFD int, permanent bool) (int, error) {
	d := m.registry.byIndex(id)
	if d == nil {
		return -1, errors.Annotatef(unix.EINVAL, "no driver with id %d", id)
	}
	fd, err := m.fds.register(d, localFD, permanent)
	if err != nil {
		return -1, errors.Annotatef(err, "bind local fd %d of %s", localFD, d.name())
	}
	log.Debugf("bound fd %d to local fd %d of %s", fd, localFD, d.name())
	return fd, nil
}

// UnregisterFD releases a permanent descriptor previously bound to driver id.
func (m *Manager) UnregisterFD(id int, fd int) error {
	d := m.registry.byIndex(id)
	if d == nil {
		return errors.Annotatef(unix.EINVAL, "no driver with id %d", id)
	}
	if err := m.fds.unbind(d, fd); err != nil {
		return errors.Annotatef(err, "unbind fd %d of %s", fd, d.name())
	}
	return nil
}

// Unregister unmounts driver id and drops its descriptors.
func (m *Manager) Unregister(id int) error {
	d, err := m.registry.remove(id, func(d *driver) {
		m.fds.dropDriver(d)
	})
	if err != nil {
		return err
	}
	log.Infof("unmounted %s (driver %d)", d.name(), d.index)
	return nil
}

// UnregisterPath unmounts the driver registered at prefix.
func (m *Manager) UnregisterPath(prefix string) error {
	index := m.registry.indexOfPrefix(prefix)
	if index < 0 {
		return errors.Annotatef(ErrInvalidState, "nothing mounted at %q", prefix)
	}
	return m.Unregister(index)
}
