package mux

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/macos-fuse-t/go-vfsmux/internal/util"
	"github.com/macos-fuse-t/go-vfsmux/vfs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// partition holds the driver-local sets of one driver for one select call.
type partition struct {
	drv      *driver
	readfds  vfs.FdSet
	writefds vfs.FdSet
	errorfds vfs.FdSet
	isset    bool
	// one past the highest local descriptor in the sets
	nfds int
	// local descriptor -> global descriptor, for the way back
	globals map[int]int
}

type armedDriver struct {
	part   *partition
	handle interface{}
}

func moveBit(global, local *vfs.FdSet, fd, localFD int) bool {
	if !vfs.FdIsSet(global, fd) {
		return false
	}
	global.Clear(fd)
	vfs.FdSetBit(local, localFD)
	return true
}

func mergeBit(local, global *vfs.FdSet, localFD, fd int) int {
	if global == nil || !vfs.FdIsSet(local, localFD) {
		return 0
	}
	global.Set(fd)
	return 1
}

// mergeFdSets copies the bits left in every partition back to the global
// sets and returns how many were set.
func mergeFdSets(parts []partition, readfds, writefds, errorfds *vfs.FdSet) int {
	n := 0
	for i := range parts {
		p := &parts[i]
		if !p.isset {
			continue
		}
		for local, fd := range p.globals {
			n += mergeBit(&p.readfds, readfds, local, fd)
			n += mergeBit(&p.writefds, writefds, local, fd)
			n += mergeBit(&p.errorfds, errorfds, local, fd)
		}
	}
	return n
}

func logFdSet(name string, set *vfs.FdSet, nfds int) {
	if set == nil || !log.IsLevelEnabled(log.DebugLevel) {
		return
	}
	var b strings.Builder
	for fd := 0; fd < nfds; fd++ {
		if set.IsSet(fd) {
			fmt.Fprintf(&b, " %d", fd)
		}
	}
	log.Debugf("select: %s:%s", name, b.String())
}

// waitDuration rounds timeout up to whole ticks.
func (m *Manager) waitDuration(timeout time.Duration) time.Duration {
	if timeout < 0 {
		return vfs.Forever
	}
	if timeout > math.MaxInt64-m.tick {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(util.Roundup64(int64(timeout), int64(m.tick)))
}

func (m *Manager) endSelects(started []armedDriver) {
	for _, a := range started {
		end := a.part.drv.ops.Select.EndSelect
		if end == nil {
			continue
		}
		if err := end(a.handle); err != nil {
			log.Errorf("select: end_select on %s: %v", a.part.drv.name(), err)
		}
	}
}

// partitionSets pins every descriptor named in the sets and moves the bits of
// non-socket descriptors into per-driver local sets. Socket descriptors stay
// in the caller's sets. The caller must unpin the returned descriptors.
func (m *Manager) partitionSets(drivers []*driver, socket *driver, nfds int, readfds, writefds, errorfds *vfs.FdSet) ([]partition, []int, bool) {
	parts := make([]partition, len(drivers))
	var pinned []int
	useSocket := false

	for fd := 0; fd < nfds; fd++ {
		if !vfs.FdIsSet(readfds, fd) && !vfs.FdIsSet(writefds, fd) && !vfs.FdIsSet(errorfds, fd) {
			continue
		}
		e, ok := m.fds.startSelect(fd)
		if !ok {
			continue
		}
		pinned = append(pinned, fd)

		if socket != nil && e.drv == socket {
			useSocket = true
			continue
		}
		i := e.drv.index
		if i >= len(drivers) || drivers[i] != e.drv {
			// mounted after the snapshot; nobody watches it
			vfs.FdClear(readfds, fd)
			vfs.FdClear(writefds, fd)
			vfs.FdClear(errorfds, fd)
			continue
		}

		p := &parts[i]
		p.drv = e.drv
		if p.globals == nil {
			p.globals = make(map[int]int)
		}
		p.globals[e.localFD] = fd
		if e.localFD >= p.nfds && e.localFD < vfs.FdSetSize {
			p.nfds = e.localFD + 1
		}
		if moveBit(readfds, &p.readfds, fd, e.localFD) {
			p.isset = true
		}
		if moveBit(writefds, &p.writefds, fd, e.localFD) {
			p.isset = true
		}
		if moveBit(errorfds, &p.errorfds, fd, e.localFD) {
			p.isset = true
		}
		log.Debugf("select: fd %d -> local fd %d of %s", fd, e.localFD, e.drv.name())
	}
	return parts, pinned, useSocket
}

// Select waits until one of the first nfds descriptors in the three sets is
// ready, the timeout expires, or ctx is done. A negative timeout waits
// forever. On return the sets hold only the ready descriptors and the result
// is how many bits are set.
//
// Descriptors of the socket driver stay in the caller's sets and are handed
// to its native select; every other descriptor is moved into a per-driver
// local set for that driver's StartSelect. All drivers share one semaphore:
// the socket driver's when one of its descriptors is involved, otherwise one
// created for this call.
func (m *Manager) Select(ctx context.Context, nfds int, readfds, writefds, errorfds *vfs.FdSet, timeout time.Duration) (int, error) {
	if nfds < 0 || nfds > m.fds.size() {
		log.Debugf("select: incorrect nfds %d", nfds)
		return -1, unix.EINVAL
	}
	log.Debugf("select: nfds %d, timeout %v", nfds, timeout)
	logFdSet("readfds", readfds, nfds)
	logFdSet("writefds", writefds, nfds)
	logFdSet("errorfds", errorfds, nfds)

	// Drivers mounted after this point are not part of the call.
	drivers := m.registry.snapshot()
	socket := m.registry.socketDriver()

	parts, pinned, useSocket := m.partitionSets(drivers, socket, nfds, readfds, writefds, errorfds)
	defer func() {
		m.closeDeferred(m.fds.endSelect(pinned))
	}()

	var sem vfs.Semaphore
	var localSem *vfs.BinarySemaphore
	if useSocket {
		s, err := socket.ops.Select.SocketSemaphore()
		if err != nil || s == nil {
			log.Errorf("select: no semaphore from %s: %v", socket.name(), err)
			mergeFdSets(parts, readfds, writefds, errorfds)
			return -1, unix.ENOMEM
		}
		sem = s
		defer func() {
			// Socket and non-socket descriptors may have fired together;
			// leave the semaphore clear for the next caller.
			s.TryWait()
			if release := socket.ops.Select.ReleaseSocketSemaphore; release != nil {
				release(s)
			}
		}()
	} else {
		s, err := m.newSemaphore()
		if err != nil {
			log.Errorf("select: cannot create semaphore: %v", err)
			mergeFdSets(parts, readfds, writefds, errorfds)
			return -1, unix.ENOMEM
		}
		sem = s
		localSem = s
	}

	var started []armedDriver
	alwaysReady := false
	for i := range parts {
		p := &parts[i]
		if !p.isset {
			continue
		}
		sel := p.drv.ops.Select
		if sel == nil || sel.StartSelect == nil {
			log.Debugf("select: %s has no start_select, its fds are always ready", p.drv.name())
			alwaysReady = true
			continue
		}
		handle, err := sel.StartSelect(p.nfds, &p.readfds, &p.writefds, &p.errorfds, sem)
		if err == vfs.ErrNotSupported {
			log.Debugf("select: %s cannot track readiness, its fds are always ready", p.drv.name())
			alwaysReady = true
			continue
		}
		if err != nil {
			log.Debugf("select: start_select on %s failed: %v", p.drv.name(), err)
			m.endSelects(started)
			mergeFdSets(parts, readfds, writefds, errorfds)
			return -1, unix.EINTR
		}
		started = append(started, armedDriver{part: p, handle: handle})
	}
	if alwaysReady {
		sem.Signal()
	}

	ret := 0
	var waitErr error
	if useSocket {
		log.Debugf("select: calling socket select of %s", socket.name())
		ret, waitErr = socket.ops.Select.SocketSelect(ctx, nfds, readfds, writefds, errorfds, timeout, sem)
		log.Debugf("select: socket select returned %d, %v", ret, waitErr)
	} else {
		vfs.FdZero(readfds)
		vfs.FdZero(writefds)
		vfs.FdZero(errorfds)
		_, waitErr = localSem.Wait(ctx, m.waitDuration(timeout))
	}
	if waitErr != nil {
		ret = -1
	}

	m.endSelects(started)

	if ret >= 0 {
		ret += mergeFdSets(parts, readfds, writefds, errorfds)
	}
	m.stats.AddSelect(ret == 0)

	if ret < 0 {
		if ctx.Err() != nil {
			return -1, unix.EINTR
		}
		return -1, vfs.ToErrno(waitErr)
	}

	log.Debugf("select: returning %d", ret)
	logFdSet("readfds", readfds, nfds)
	logFdSet("writefds", writefds, nfds)
	logFdSet("errorfds", errorfds, nfds)
	return ret, nil
}
