package mux

import (
	"github.com/macos-fuse-t/go-vfsmux/vfs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func (m *Manager) resolveFD(fd int) (*driver, int, error) {
	e, ok := m.fds.lookup(fd)
	if !ok {
		return nil, -1, unix.EBADF
	}
	return e.drv, e.localFD, nil
}

func (m *Manager) resolvePath(path string) (*driver, string, error) {
	d := m.registry.byPath(path)
	if d == nil {
		log.Debugf("no driver for %s", path)
		return nil, "", unix.ENOENT
	}
	return d, d.translatePath(path), nil
}

// fail turns a driver error into the errno returned to the caller.
func (m *Manager) fail(d *driver, op string, err error) error {
	errno := vfs.ToErrno(err)
	log.Debugf("%s on %s: %v", op, d.name(), err)
	m.stats.AddError(d.name())
	return errno
}

// opensForWrite reports whether open flags may modify the file system.
func opensForWrite(flags int) bool {
	return flags&unix.O_ACCMODE != unix.O_RDONLY || flags&(unix.O_CREAT|unix.O_TRUNC) != 0
}

func (m *Manager) Open(path string, flags int, mode uint32) (int, error) {
	d, p, err := m.resolvePath(path)
	if err != nil {
		return -1, err
	}
	if d.readOnly && opensForWrite(flags) {
		return -1, unix.EROFS
	}
	if d.ops.Open == nil {
		return -1, unix.ENOSYS
	}

	local, err := d.ops.Open(p, flags, mode)
	if err != nil {
		return -1, m.fail(d, "open", err)
	}

	fd, err := m.fds.register(d, local, false)
	if err != nil {
		log.Errorf("open %s: descriptor table full", path)
		if d.ops.Close != nil {
			if cerr := d.ops.Close(local); cerr != nil {
				log.Errorf("open %s: closing local fd %d: %v", path, local, cerr)
			}
		}
		return -1, unix.ENFILE
	}

	log.Debugf("open %s: fd %d -> %s local fd %d", path, fd, d.name(), local)
	m.stats.AddOpen(d.name())
	return fd, nil
}

func (m *Manager) Read(fd int, p []byte) (int, error) {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return -1, err
	}
	if d.ops.Read == nil {
		return -1, unix.ENOSYS
	}
	n, err := d.ops.Read(local, p)
	if err != nil {
		return -1, m.fail(d, "read", err)
	}
	m.stats.AddReadBytes(d.name(), uint64(n))
	return n, nil
}

func (m *Manager) Write(fd int, p []byte) (int, error) {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return -1, err
	}
	if d.readOnly {
		return -1, unix.EROFS
	}
	if d.ops.Write == nil {
		return -1, unix.ENOSYS
	}
	n, err := d.ops.Write(local, p)
	if err != nil {
		return -1, m.fail(d, "write", err)
	}
	m.stats.AddWriteBytes(d.name(), uint64(n))
	return n, nil
}

func (m *Manager) Pread(fd int, p []byte, off int64) (int, error) {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return -1, err
	}
	if d.ops.Pread == nil {
		return -1, unix.ENOSYS
	}
	n, err := d.ops.Pread(local, p, off)
	if err != nil {
		return -1, m.fail(d, "pread", err)
	}
	m.stats.AddReadBytes(d.name(), uint64(n))
	return n, nil
}

func (m *Manager) Pwrite(fd int, p []byte, off int64) (int, error) {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return -1, err
	}
	if d.readOnly {
		return -1, unix.EROFS
	}
	if d.ops.Pwrite == nil {
		return -1, unix.ENOSYS
	}
	n, err := d.ops.Pwrite(local, p, off)
	if err != nil {
		return -1, m.fail(d, "pwrite", err)
	}
	m.stats.AddWriteBytes(d.name(), uint64(n))
	return n, nil
}

func (m *Manager) Lseek(fd int, off int64, whence int) (int64, error) {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return -1, err
	}
	if d.ops.Lseek == nil {
		return -1, unix.ENOSYS
	}
	pos, err := d.ops.Lseek(local, off, whence)
	if err != nil {
		return -1, m.fail(d, "lseek", err)
	}
	return pos, nil
}

// Close releases fd. If another task is blocked in Select on fd, the driver
// close is deferred until that Select returns; fd stays allocated until then
// but is no longer usable.
func (m *Manager) Close(fd int) error {
	d, _, err := m.resolveFD(fd)
	if err != nil {
		return err
	}
	if d.ops.Close == nil {
		return unix.ENOSYS
	}

	e, now, err := m.fds.beginClose(fd)
	if err != nil {
		return err
	}
	if !now {
		log.Debugf("close %d: deferred until select returns", fd)
		return nil
	}
	m.stats.AddClose(e.drv.name())
	if err := e.drv.ops.Close(e.localFD); err != nil {
		return m.fail(e.drv, "close", err)
	}
	return nil
}

// closeDeferred performs the driver close of descriptors released by the
// last select watching them.
func (m *Manager) closeDeferred(due []fdEntry) {
	for _, e := range due {
		log.Debugf("closing deferred local fd %d of %s", e.localFD, e.drv.name())
		m.stats.AddClose(e.drv.name())
		if e.drv.ops.Close == nil {
			continue
		}
		if err := e.drv.ops.Close(e.localFD); err != nil {
			log.Errorf("deferred close of local fd %d on %s: %v", e.localFD, e.drv.name(), err)
		}
	}
}

func (m *Manager) Fstat(fd int) (*vfs.Attributes, error) {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return nil, err
	}
	if d.ops.Fstat == nil {
		return nil, unix.ENOSYS
	}
	a, err := d.ops.Fstat(local)
	if err != nil {
		return nil, m.fail(d, "fstat", err)
	}
	return a, nil
}

func (m *Manager) Fcntl(fd int, cmd int, arg int) (int, error) {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return -1, err
	}
	if d.ops.Fcntl == nil {
		return -1, unix.ENOSYS
	}
	ret, err := d.ops.Fcntl(local, cmd, arg)
	if err != nil {
		return -1, m.fail(d, "fcntl", err)
	}
	return ret, nil
}

func (m *Manager) Ioctl(fd int, cmd int, arg interface{}) (int, error) {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return -1, err
	}
	if d.ops.Ioctl == nil {
		return -1, unix.ENOSYS
	}
	ret, err := d.ops.Ioctl(local, cmd, arg)
	if err != nil {
		return -1, m.fail(d, "ioctl", err)
	}
	return ret, nil
}

func (m *Manager) Fsync(fd int) error {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return err
	}
	if d.ops.Fsync == nil {
		return unix.ENOSYS
	}
	if err := d.ops.Fsync(local); err != nil {
		return m.fail(d, "fsync", err)
	}
	return nil
}

// LocalFD returns the driver-local descriptor behind fd if fd belongs to
// driver id, or -1.
func (m *Manager) LocalFD(id int, fd int) int {
	d := m.registry.byIndex(id)
	if d == nil {
		return -1
	}
	return m.fds.localFD(d, fd)
}
