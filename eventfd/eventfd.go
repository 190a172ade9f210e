// Package eventfd provides Linux style event counters as descriptors of the
// manager. They have no path; Eventfd binds each one to a global descriptor.
package eventfd

import (
	"encoding/binary"
	"sync"

	"github.com/juju/errors"
	"github.com/macos-fuse-t/go-vfsmux/mux"
	"github.com/macos-fuse-t/go-vfsmux/vfs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	// FlagSemaphore makes every read return 1 and decrement the counter.
	FlagSemaphore = 0x1
	// FlagNonBlock makes reads and writes fail with EAGAIN instead of
	// blocking.
	FlagNonBlock = 0x800

	maxValue = ^uint64(0) - 1
)

type event struct {
	value  uint64
	flags  int
	closed bool
}

type waiter struct {
	readfds  *vfs.FdSet
	writefds *vfs.FdSet
	wantRead map[int]bool
	wantWr   map[int]bool
	sem      vfs.Semaphore
}

type Driver struct {
	m  *mux.Manager
	id int

	mu      sync.Mutex
	cond    *sync.Cond
	events  map[int]*event
	waiters map[*waiter]struct{}
	max     int
}

// Register adds the driver to m. At most maxEvents counters can be open at
// the same time.
func Register(m *mux.Manager, maxEvents int) (*Driver, error) {
	if maxEvents <= 0 {
		return nil, errors.Annotatef(unix.EINVAL, "eventfd: invalid limit %d", maxEvents)
	}
	d := &Driver{
		m:       m,
		events:  make(map[int]*event),
		waiters: make(map[*waiter]struct{}),
		max:     maxEvents,
	}
	d.cond = sync.NewCond(&d.mu)

	id, err := m.RegisterWithID(d.ops())
	if err != nil {
		return nil, errors.Annotate(err, "eventfd")
	}
	d.id = id
	log.Infof("eventfd: registered as driver %d, %d events", id, maxEvents)
	return d, nil
}

func (d *Driver) ID() int {
	return d.id
}

// Unregister removes the driver and wakes every blocked reader and writer.
func (d *Driver) Unregister() error {
	d.mu.Lock()
	for _, ev := range d.events {
		ev.closed = true
	}
	d.events = make(map[int]*event)
	d.cond.Broadcast()
	d.mu.Unlock()

	return d.m.Unregister(d.id)
}

// Eventfd creates a counter with the given initial value and returns its
// global descriptor.
func (d *Driver) Eventfd(initval uint64, flags int) (int, error) {
	if flags&^(FlagSemaphore|FlagNonBlock) != 0 || initval > maxValue {
		return -1, unix.EINVAL
	}

	d.mu.Lock()
	local := -1
	for i := 0; i < d.max; i++ {
		if _, ok := d.events[i]; !ok {
			local = i
			break
		}
	}
	if local < 0 {
		d.mu.Unlock()
		return -1, unix.ENFILE
	}
	d.events[local] = &event{value: initval, flags: flags}
	d.mu.Unlock()

	fd, err := d.m.RegisterFDWithLocalFD(d.id, local, false)
	if err != nil {
		d.mu.Lock()
		delete(d.events, local)
		d.mu.Unlock()
		return -1, errors.Cause(err)
	}
	log.Debugf("eventfd: fd %d (local %d), value %d, flags %#x", fd, local, initval, flags)
	return fd, nil
}

func (d *Driver) ops() *vfs.Ops {
	return &vfs.Ops{
		Read:  d.read,
		Write: d.write,
		Close: d.close,
		Select: &vfs.SelectOps{
			StartSelect: d.startSelect,
			EndSelect:   d.endSelect,
		},
	}
}

func (d *Driver) read(fd int, p []byte) (int, error) {
	if len(p) < 8 {
		return -1, unix.EINVAL
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ev, ok := d.events[fd]
	if !ok {
		return -1, unix.EBADF
	}
	for ev.value == 0 {
		if ev.flags&FlagNonBlock != 0 {
			return -1, unix.EAGAIN
		}
		d.cond.Wait()
		if ev.closed {
			return -1, unix.EBADF
		}
	}

	var v uint64
	if ev.flags&FlagSemaphore != 0 {
		v = 1
		ev.value--
	} else {
		v = ev.value
		ev.value = 0
	}
	binary.LittleEndian.PutUint64(p, v)
	d.cond.Broadcast()
	d.notify(fd, ev)
	return 8, nil
}

func (d *Driver) write(fd int, p []byte) (int, error) {
	if len(p) < 8 {
		return -1, unix.EINVAL
	}
	v := binary.LittleEndian.Uint64(p)
	if v == ^uint64(0) {
		return -1, unix.EINVAL
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ev, ok := d.events[fd]
	if !ok {
		return -1, unix.EBADF
	}
	for v > maxValue-ev.value {
		if ev.flags&FlagNonBlock != 0 {
			return -1, unix.EAGAIN
		}
		d.cond.Wait()
		if ev.closed {
			return -1, unix.EBADF
		}
	}
	ev.value += v
	d.cond.Broadcast()
	d.notify(fd, ev)
	return 8, nil
}

func (d *Driver) close(fd int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev, ok := d.events[fd]
	if !ok {
		return unix.EBADF
	}
	ev.closed = true
	delete(d.events, fd)
	d.cond.Broadcast()
	return nil
}

// notify reports fd to every select waiting on it. Called with d.mu held.
func (d *Driver) notify(fd int, ev *event) {
	for w := range d.waiters {
		if w.check(fd, ev) {
			w.sem.Signal()
		}
	}
}

func (w *waiter) check(fd int, ev *event) bool {
	fired := false
	if w.wantRead[fd] && ev.value > 0 {
		vfs.FdSetBit(w.readfds, fd)
		fired = true
	}
	if w.wantWr[fd] && ev.value < maxValue {
		vfs.FdSetBit(w.writefds, fd)
		fired = true
	}
	return fired
}

func (d *Driver) startSelect(nfds int, readfds, writefds, errorfds *vfs.FdSet, sem vfs.Semaphore) (interface{}, error) {
	w := &waiter{
		readfds:  readfds,
		writefds: writefds,
		wantRead: make(map[int]bool),
		wantWr:   make(map[int]bool),
		sem:      sem,
	}
	for fd := 0; fd < nfds; fd++ {
		if vfs.FdIsSet(readfds, fd) {
			w.wantRead[fd] = true
		}
		if vfs.FdIsSet(writefds, fd) {
			w.wantWr[fd] = true
		}
	}
	vfs.FdZero(readfds)
	vfs.FdZero(writefds)
	vfs.FdZero(errorfds)

	d.mu.Lock()
	defer d.mu.Unlock()

	fired := false
	for fd, ev := range d.events {
		if w.check(fd, ev) {
			fired = true
		}
	}
	d.waiters[w] = struct{}{}
	if fired {
		sem.Signal()
	}
	return w, nil
}

func (d *Driver) endSelect(handle interface{}) error {
	w, ok := handle.(*waiter)
	if !ok {
		return unix.EINVAL
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.waiters, w)
	return nil
}
