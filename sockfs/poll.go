package sockfs

import (
	"context"
	"time"

	"github.com/macos-fuse-t/go-vfsmux/vfs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// pollSlice bounds one poll so a cancelled context is noticed.
const pollSlice = 100 * time.Millisecond

type watched struct {
	fd   int
	host int
}

// socketSelect waits for the sockets named in the sets, for sem, or for the
// timeout. The sets are global, but global and local numbers are the same
// inside the range.
func (d *Driver) socketSelect(ctx context.Context, nfds int, readfds, writefds, errorfds *vfs.FdSet, timeout time.Duration, sem vfs.Semaphore) (int, error) {
	ps, ok := sem.(*pipeSemaphore)
	if !ok {
		return -1, unix.EINVAL
	}

	var socks []watched
	pfds := []unix.PollFd{{Fd: int32(ps.r), Events: unix.POLLIN}}
	for fd := d.minFD; fd <= d.maxFD && fd < nfds; fd++ {
		var events int16
		if vfs.FdIsSet(readfds, fd) {
			events |= unix.POLLIN
		}
		if vfs.FdIsSet(writefds, fd) {
			events |= unix.POLLOUT
		}
		if events == 0 && !vfs.FdIsSet(errorfds, fd) {
			continue
		}
		h, err := d.host(fd)
		if err != nil {
			return -1, unix.EBADF
		}
		socks = append(socks, watched{fd: fd, host: h})
		pfds = append(pfds, unix.PollFd{Fd: int32(h), Events: events})
	}

	wantR := *zeroIfNil(readfds)
	wantW := *zeroIfNil(writefds)
	wantE := *zeroIfNil(errorfds)
	vfs.FdZero(readfds)
	vfs.FdZero(writefds)
	vfs.FdZero(errorfds)

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		wait := pollSlice
		if timeout >= 0 {
			wait = time.Until(deadline)
			if wait < 0 {
				wait = 0
			}
			if wait > pollSlice {
				wait = pollSlice
			}
		}

		n, err := unix.Poll(pfds, int((wait+time.Millisecond-1)/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			log.Errorf("sockfs: poll: %v", err)
			return -1, err
		}
		if n > 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return -1, err
		}
		if timeout >= 0 && !time.Now().Before(deadline) {
			return 0, nil
		}
	}

	ret := 0
	for i, s := range socks {
		rev := pfds[i+1].Revents
		if rev&(unix.POLLIN|unix.POLLHUP) != 0 && wantR.IsSet(s.fd) {
			readfds.Set(s.fd)
			ret++
		}
		if rev&unix.POLLOUT != 0 && wantW.IsSet(s.fd) {
			writefds.Set(s.fd)
			ret++
		}
		if rev&(unix.POLLERR|unix.POLLNVAL) != 0 {
			switch {
			case wantE.IsSet(s.fd):
				errorfds.Set(s.fd)
				ret++
			case wantR.IsSet(s.fd) && !readfds.IsSet(s.fd):
				// let the read report the error
				readfds.Set(s.fd)
				ret++
			}
		}
	}
	if pfds[0].Revents != 0 {
		log.Debugf("sockfs: woken by semaphore, %d sockets ready", ret)
	}
	return ret, nil
}

func zeroIfNil(set *vfs.FdSet) *vfs.FdSet {
	if set == nil {
		return &vfs.FdSet{}
	}
	return set
}
