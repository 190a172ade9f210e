package mux

import (
	"io"
	"sync"

	"github.com/macos-fuse-t/go-vfsmux/vfs"
	"golang.org/x/sys/unix"
)

// memDriver is an in-memory driver used by the mux tests. Readiness is
// driven by the test through setReady.
type memDriver struct {
	mu       sync.Mutex
	files    map[string][]byte
	handles  map[int]string
	next     int
	closed   []int
	lastPath string

	ready    map[int]bool
	armed    *memSelect
	startErr error
	starts   int
	ends     int
	nfds     []int
}

type memSelect struct {
	readfds *vfs.FdSet
	want    vfs.FdSet
	sem     vfs.Semaphore
}

func newMemDriver() *memDriver {
	return &memDriver{
		files:   map[string][]byte{},
		handles: map[int]string{},
		ready:   map[int]bool{},
	}
}

func (d *memDriver) open(path string, flags int, mode uint32) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastPath = path
	if _, ok := d.files[path]; !ok {
		if flags&unix.O_CREAT == 0 {
			return -1, unix.ENOENT
		}
		d.files[path] = nil
	}
	fd := d.next
	d.next++
	d.handles[fd] = path
	return fd, nil
}

func (d *memDriver) read(fd int, p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path, ok := d.handles[fd]
	if !ok {
		return -1, unix.EBADF
	}
	n := copy(p, d.files[path])
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (d *memDriver) write(fd int, p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path, ok := d.handles[fd]
	if !ok {
		return -1, unix.EBADF
	}
	d.files[path] = append(d.files[path], p...)
	return len(p), nil
}

func (d *memDriver) close(fd int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = append(d.closed, fd)
	if _, ok := d.handles[fd]; !ok {
		return unix.EBADF
	}
	delete(d.handles, fd)
	return nil
}

func (d *memDriver) closedFDs() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.closed...)
}

func (d *memDriver) startSelect(nfds int, r, w, e *vfs.FdSet, sem vfs.Semaphore) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.starts++
	d.nfds = append(d.nfds, nfds)
	if d.startErr != nil {
		return nil, d.startErr
	}
	// like a real driver, only the first nfds descriptors are looked at
	s := &memSelect{readfds: r, sem: sem}
	for fd := 0; fd < nfds; fd++ {
		if vfs.FdIsSet(r, fd) {
			s.want.Set(fd)
		}
	}
	vfs.FdZero(r)
	vfs.FdZero(w)
	vfs.FdZero(e)

	fired := false
	for fd := range d.ready {
		if d.ready[fd] && s.want.IsSet(fd) {
			r.Set(fd)
			fired = true
		}
	}
	d.armed = s
	if fired {
		sem.Signal()
	}
	return s, nil
}

func (d *memDriver) endSelect(handle interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ends++
	if d.armed == handle {
		d.armed = nil
	}
	return nil
}

func (d *memDriver) setReady(fd int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ready[fd] = true
	if s := d.armed; s != nil && s.want.IsSet(fd) {
		s.readfds.Set(fd)
		s.sem.Signal()
	}
}

func (d *memDriver) counts() (starts, ends int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.ends
}

func (d *memDriver) ops() *vfs.Ops {
	return &vfs.Ops{
		Open:  d.open,
		Read:  d.read,
		Write: d.write,
		Close: d.close,
		Dir: &vfs.DirOps{
			Rename: func(src, dst string) error {
				d.mu.Lock()
				defer d.mu.Unlock()
				b, ok := d.files[src]
				if !ok {
					return unix.ENOENT
				}
				delete(d.files, src)
				d.files[dst] = b
				return nil
			},
			Unlink: func(path string) error {
				d.mu.Lock()
				defer d.mu.Unlock()
				delete(d.files, path)
				return nil
			},
			Opendir: func(path string) (vfs.DirStream, error) {
				return path, nil
			},
			Readdir: func(dir vfs.DirStream) (*vfs.DirEntry, error) {
				return nil, nil
			},
			Closedir: func(dir vfs.DirStream) error {
				return nil
			},
		},
		Select: &vfs.SelectOps{
			StartSelect: d.startSelect,
			EndSelect:   d.endSelect,
		},
	}
}

// plainOps is a driver with only the basic calls and no select support.
func plainOps(d *memDriver) *vfs.Ops {
	return &vfs.Ops{
		Open:  d.open,
		Read:  d.read,
		Close: d.close,
	}
}
