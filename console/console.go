// Package console binds standard input, output and error to global
// descriptors 0, 1 and 2 and mounts them under a path as well.
package console

import (
	"io"
	"os"
	"sync"

	"github.com/juju/errors"
	"github.com/macos-fuse-t/go-vfsmux/mux"
	"github.com/macos-fuse-t/go-vfsmux/vfs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const DefaultPrefix = "/dev/console"

type handle struct {
	r io.Reader
	w io.Writer
	// std handles are bound for the lifetime of the driver
	std bool
}

type Console struct {
	mu      sync.Mutex
	handles map[int]*handle
	out     io.Writer
	in      io.Reader
}

func New(in io.Reader, out, errOut io.Writer) *Console {
	return &Console{
		in:  in,
		out: out,
		handles: map[int]*handle{
			0: {r: in, std: true},
			1: {w: out, std: true},
			2: {w: errOut, std: true},
		},
	}
}

// NewStdio uses the process' own standard streams.
func NewStdio() *Console {
	return New(os.Stdin, os.Stdout, os.Stderr)
}

// Mount registers c at prefix and binds global descriptors 0..2. It must run
// before anything else takes those descriptors.
func (c *Console) Mount(m *mux.Manager, prefix string) (int, error) {
	id, err := m.Register(prefix, c.Ops(), false)
	if err != nil {
		return -1, errors.Annotate(err, "console")
	}
	for local := 0; local <= 2; local++ {
		fd, err := m.RegisterFDWithLocalFD(id, local, true)
		if err == nil && fd != local {
			err = errors.Annotatef(unix.EBUSY, "descriptor %d is taken", local)
		}
		if err != nil {
			m.Unregister(id)
			return -1, errors.Annotate(err, "console")
		}
	}
	log.Infof("console: stdio bound to descriptors 0..2, mounted at %s", prefix)
	return id, nil
}

func (c *Console) get(fd int) (*handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.handles[fd]
	if !ok {
		return nil, unix.EBADF
	}
	return h, nil
}

func (c *Console) open(path string, flags int, mode uint32) (int, error) {
	if path != "/" {
		return -1, unix.ENOENT
	}
	h := &handle{}
	switch flags & unix.O_ACCMODE {
	case unix.O_RDONLY:
		h.r = c.in
	case unix.O_WRONLY:
		h.w = c.out
	default:
		h.r, h.w = c.in, c.out
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fd := 3
	for ; ; fd++ {
		if _, ok := c.handles[fd]; !ok {
			break
		}
	}
	c.handles[fd] = h
	return fd, nil
}

func (c *Console) read(fd int, p []byte) (int, error) {
	h, err := c.get(fd)
	if err != nil {
		return -1, err
	}
	if h.r == nil {
		return -1, unix.EBADF
	}
	n, err := h.r.Read(p)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

func (c *Console) write(fd int, p []byte) (int, error) {
	h, err := c.get(fd)
	if err != nil {
		return -1, err
	}
	if h.w == nil {
		return -1, unix.EBADF
	}
	return h.w.Write(p)
}

func (c *Console) close(fd int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.handles[fd]
	if !ok {
		return unix.EBADF
	}
	if !h.std {
		delete(c.handles, fd)
	}
	return nil
}

func (c *Console) fstat(fd int) (*vfs.Attributes, error) {
	if _, err := c.get(fd); err != nil {
		return nil, err
	}
	a := &vfs.Attributes{}
	a.SetFileType(vfs.FileTypeCharacterDevice).SetPermissions(0620)
	return a, nil
}

func (c *Console) fsync(fd int) error {
	h, err := c.get(fd)
	if err != nil {
		return err
	}
	if s, ok := h.w.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil && !errors.Is(err, unix.EINVAL) {
			return err
		}
	}
	return nil
}

// startSelect reports writes as always possible. Reads cannot be tracked,
// so a read request makes every descriptor ready.
func (c *Console) startSelect(nfds int, readfds, writefds, errorfds *vfs.FdSet, sem vfs.Semaphore) (interface{}, error) {
	if vfs.FdCount(readfds, nfds) > 0 {
		return nil, vfs.ErrNotSupported
	}
	vfs.FdZero(errorfds)
	if vfs.FdCount(writefds, nfds) > 0 {
		sem.Signal()
	}
	return nil, nil
}

func (c *Console) Ops() *vfs.Ops {
	return &vfs.Ops{
		Open:  c.open,
		Read:  c.read,
		Write: c.write,
		Close: c.close,
		Fstat: c.fstat,
		Fsync: c.fsync,
		Select: &vfs.SelectOps{
			StartSelect: c.startSelect,
		},
	}
}
