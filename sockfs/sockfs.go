// Package sockfs is the socket driver: it owns a fixed range of global
// descriptors, each backed by a host socket, and waits on them with the
// host's poll.
package sockfs

import (
	"sync"

	"github.com/juju/errors"
	"github.com/macos-fuse-t/go-vfsmux/mux"
	"github.com/macos-fuse-t/go-vfsmux/vfs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type Driver struct {
	m     *mux.Manager
	id    int
	minFD int
	maxFD int

	mu    sync.Mutex
	hosts []int
	// idle wait semaphores, reused across select calls
	pool []*pipeSemaphore
}

// Register mounts the driver on global descriptors minFD..maxFD.
func Register(m *mux.Manager, minFD, maxFD int) (*Driver, error) {
	d := &Driver{
		m:     m,
		minFD: minFD,
		maxFD: maxFD,
	}
	if maxFD >= minFD && minFD >= 0 {
		d.hosts = make([]int, maxFD-minFD+1)
		for i := range d.hosts {
			d.hosts[i] = -1
		}
	}

	id, err := m.RegisterFDRange(d.ops(), minFD, maxFD)
	if err != nil {
		return nil, errors.Annotate(err, "sockfs")
	}
	d.id = id
	log.Infof("sockfs: driver %d owns descriptors %d..%d", id, minFD, maxFD)
	return d, nil
}

// Unregister closes every socket and removes the driver.
func (d *Driver) Unregister() error {
	d.mu.Lock()
	for i, h := range d.hosts {
		if h >= 0 {
			unix.Close(h)
			d.hosts[i] = -1
		}
	}
	for _, s := range d.pool {
		s.close()
	}
	d.pool = nil
	d.mu.Unlock()

	return d.m.Unregister(d.id)
}

func (d *Driver) ID() int {
	return d.id
}

// host returns the host socket behind a descriptor of the range.
func (d *Driver) host(fd int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fd < d.minFD || fd > d.maxFD || d.hosts[fd-d.minFD] < 0 {
		return -1, unix.EBADF
	}
	return d.hosts[fd-d.minFD], nil
}

// Adopt takes ownership of the host socket h and returns its descriptor.
func (d *Driver) Adopt(h int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, cur := range d.hosts {
		if cur < 0 {
			d.hosts[i] = h
			log.Debugf("sockfs: fd %d -> host socket %d", d.minFD+i, h)
			return d.minFD + i, nil
		}
	}
	return -1, unix.ENFILE
}

func (d *Driver) adoptOrClose(h int) (int, error) {
	fd, err := d.Adopt(h)
	if err != nil {
		unix.Close(h)
		return -1, err
	}
	return fd, nil
}

func (d *Driver) Socket(domain, typ, proto int) (int, error) {
	h, err := unix.Socket(domain, typ, proto)
	if err != nil {
		return -1, err
	}
	return d.adoptOrClose(h)
}

func (d *Driver) Socketpair(domain, typ, proto int) ([2]int, error) {
	hs, err := unix.Socketpair(domain, typ, proto)
	if err != nil {
		return [2]int{-1, -1}, err
	}
	a, err := d.adoptOrClose(hs[0])
	if err != nil {
		unix.Close(hs[1])
		return [2]int{-1, -1}, err
	}
	b, err := d.adoptOrClose(hs[1])
	if err != nil {
		d.close(a)
		return [2]int{-1, -1}, err
	}
	return [2]int{a, b}, nil
}

func (d *Driver) Bind(fd int, sa unix.Sockaddr) error {
	h, err := d.host(fd)
	if err != nil {
		return err
	}
	return unix.Bind(h, sa)
}

func (d *Driver) Listen(fd int, backlog int) error {
	h, err := d.host(fd)
	if err != nil {
		return err
	}
	return unix.Listen(h, backlog)
}

func (d *Driver) Connect(fd int, sa unix.Sockaddr) error {
	h, err := d.host(fd)
	if err != nil {
		return err
	}
	return unix.Connect(h, sa)
}

func (d *Driver) Accept(fd int) (int, unix.Sockaddr, error) {
	h, err := d.host(fd)
	if err != nil {
		return -1, nil, err
	}
	nh, sa, err := unix.Accept(h)
	if err != nil {
		return -1, nil, err
	}
	nfd, err := d.adoptOrClose(nh)
	return nfd, sa, err
}

func (d *Driver) ops() *vfs.Ops {
	return &vfs.Ops{
		Read:  d.read,
		Write: d.write,
		Close: d.close,
		Fstat: d.fstat,
		Fcntl: d.fcntl,
		Select: &vfs.SelectOps{
			SocketSelect:           d.socketSelect,
			SocketSemaphore:        d.socketSemaphore,
			ReleaseSocketSemaphore: d.releaseSocketSemaphore,
		},
	}
}

func (d *Driver) read(fd int, p []byte) (int, error) {
	h, err := d.host(fd)
	if err != nil {
		return -1, err
	}
	return unix.Read(h, p)
}

func (d *Driver) write(fd int, p []byte) (int, error) {
	h, err := d.host(fd)
	if err != nil {
		return -1, err
	}
	return unix.Write(h, p)
}

func (d *Driver) close(fd int) error {
	d.mu.Lock()
	if fd < d.minFD || fd > d.maxFD || d.hosts[fd-d.minFD] < 0 {
		d.mu.Unlock()
		return unix.EBADF
	}
	h := d.hosts[fd-d.minFD]
	d.hosts[fd-d.minFD] = -1
	d.mu.Unlock()

	log.Debugf("sockfs: closing fd %d (host %d)", fd, h)
	return unix.Close(h)
}

func (d *Driver) fstat(fd int) (*vfs.Attributes, error) {
	h, err := d.host(fd)
	if err != nil {
		return nil, err
	}
	var st unix.Stat_t
	if err := unix.Fstat(h, &st); err != nil {
		return nil, err
	}
	a := &vfs.Attributes{}
	a.SetFileType(vfs.FileTypeSocket).
		SetPermissions(uint32(st.Mode)).
		SetInodeNumber(uint64(st.Ino))
	return a, nil
}

func (d *Driver) fcntl(fd int, cmd int, arg int) (int, error) {
	h, err := d.host(fd)
	if err != nil {
		return -1, err
	}
	return unix.FcntlInt(uintptr(h), cmd, arg)
}

func (d *Driver) socketSemaphore() (vfs.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := len(d.pool); n > 0 {
		s := d.pool[n-1]
		d.pool = d.pool[:n-1]
		return s, nil
	}
	s, err := newPipeSemaphore()
	if err != nil {
		log.Errorf("sockfs: semaphore: %v", err)
		return nil, err
	}
	return s, nil
}

func (d *Driver) releaseSocketSemaphore(sem vfs.Semaphore) {
	s, ok := sem.(*pipeSemaphore)
	if !ok {
		return
	}
	s.TryWait()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pool = append(d.pool, s)
}
