package mux

import (
	"time"

	"github.com/macos-fuse-t/go-vfsmux/vfs"
	"golang.org/x/sys/unix"
)

// Dir is an open directory stream. It remembers the driver that opened it.
type Dir struct {
	drv    *driver
	stream vfs.DirStream
}

func dirOps(d *driver) *vfs.DirOps {
	if d.ops.Dir == nil {
		return &vfs.DirOps{}
	}
	return d.ops.Dir
}

// resolvePair resolves both paths of a two-path call and rejects pairs that
// span drivers.
func (m *Manager) resolvePair(src, dst string) (*driver, string, string, error) {
	d, sp, err := m.resolvePath(src)
	if err != nil {
		return nil, "", "", err
	}
	d2, dp, err := m.resolvePath(dst)
	if err != nil {
		return nil, "", "", err
	}
	if d != d2 {
		return nil, "", "", unix.EXDEV
	}
	return d, sp, dp, nil
}

func (m *Manager) Stat(path string) (*vfs.Attributes, error) {
	d, p, err := m.resolvePath(path)
	if err != nil {
		return nil, err
	}
	op := dirOps(d).Stat
	if op == nil {
		return nil, unix.ENOSYS
	}
	a, err := op(p)
	if err != nil {
		return nil, m.fail(d, "stat", err)
	}
	return a, nil
}

func (m *Manager) Link(oldpath, newpath string) error {
	d, op1, op2, err := m.resolvePair(oldpath, newpath)
	if err != nil {
		return err
	}
	if d.readOnly {
		return unix.EROFS
	}
	op := dirOps(d).Link
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(op1, op2); err != nil {
		return m.fail(d, "link", err)
	}
	return nil
}

func (m *Manager) Unlink(path string) error {
	d, p, err := m.resolvePath(path)
	if err != nil {
		return err
	}
	if d.readOnly {
		return unix.EROFS
	}
	op := dirOps(d).Unlink
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(p); err != nil {
		return m.fail(d, "unlink", err)
	}
	return nil
}

func (m *Manager) Rename(src, dst string) error {
	d, sp, dp, err := m.resolvePair(src, dst)
	if err != nil {
		return err
	}
	if d.readOnly {
		return unix.EROFS
	}
	op := dirOps(d).Rename
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(sp, dp); err != nil {
		return m.fail(d, "rename", err)
	}
	return nil
}

func (m *Manager) Opendir(path string) (*Dir, error) {
	d, p, err := m.resolvePath(path)
	if err != nil {
		return nil, err
	}
	op := dirOps(d).Opendir
	if op == nil {
		return nil, unix.ENOSYS
	}
	stream, err := op(p)
	if err != nil {
		return nil, m.fail(d, "opendir", err)
	}
	return &Dir{drv: d, stream: stream}, nil
}

// dirDriver checks that dir is open and its driver is still mounted.
func (m *Manager) dirDriver(dir *Dir) (*driver, error) {
	if dir == nil || dir.drv == nil {
		return nil, unix.EBADF
	}
	if m.registry.byIndex(dir.drv.index) != dir.drv {
		return nil, unix.EBADF
	}
	return dir.drv, nil
}

// Readdir returns the next entry, or nil at the end of the stream.
func (m *Manager) Readdir(dir *Dir) (*vfs.DirEntry, error) {
	d, err := m.dirDriver(dir)
	if err != nil {
		return nil, err
	}
	op := dirOps(d).Readdir
	if op == nil {
		return nil, unix.ENOSYS
	}
	ent, err := op(dir.stream)
	if err != nil {
		return nil, m.fail(d, "readdir", err)
	}
	return ent, nil
}

// ReaddirR fills entry with the next entry and reports false at the end of
// the stream.
func (m *Manager) ReaddirR(dir *Dir, entry *vfs.DirEntry) (bool, error) {
	d, err := m.dirDriver(dir)
	if err != nil {
		return false, err
	}
	op := dirOps(d).ReaddirR
	if op == nil {
		return false, unix.ENOSYS
	}
	ok, err := op(dir.stream, entry)
	if err != nil {
		return false, m.fail(d, "readdir_r", err)
	}
	return ok, nil
}

func (m *Manager) Telldir(dir *Dir) (int64, error) {
	d, err := m.dirDriver(dir)
	if err != nil {
		return -1, err
	}
	op := dirOps(d).Telldir
	if op == nil {
		return -1, unix.ENOSYS
	}
	loc, err := op(dir.stream)
	if err != nil {
		return -1, m.fail(d, "telldir", err)
	}
	return loc, nil
}

func (m *Manager) Seekdir(dir *Dir, loc int64) error {
	d, err := m.dirDriver(dir)
	if err != nil {
		return err
	}
	op := dirOps(d).Seekdir
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(dir.stream, loc); err != nil {
		return m.fail(d, "seekdir", err)
	}
	return nil
}

func (m *Manager) Closedir(dir *Dir) error {
	d, err := m.dirDriver(dir)
	if err != nil {
		return err
	}
	op := dirOps(d).Closedir
	if op == nil {
		return unix.ENOSYS
	}
	err = op(dir.stream)
	dir.drv = nil
	dir.stream = nil
	if err != nil {
		return m.fail(d, "closedir", err)
	}
	return nil
}

func (m *Manager) Mkdir(path string, mode uint32) error {
	d, p, err := m.resolvePath(path)
	if err != nil {
		return err
	}
	if d.readOnly {
		return unix.EROFS
	}
	op := dirOps(d).Mkdir
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(p, mode); err != nil {
		return m.fail(d, "mkdir", err)
	}
	return nil
}

func (m *Manager) Rmdir(path string) error {
	d, p, err := m.resolvePath(path)
	if err != nil {
		return err
	}
	if d.readOnly {
		return unix.EROFS
	}
	op := dirOps(d).Rmdir
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(p); err != nil {
		return m.fail(d, "rmdir", err)
	}
	return nil
}

func (m *Manager) Access(path string, amode int) error {
	d, p, err := m.resolvePath(path)
	if err != nil {
		return err
	}
	if d.readOnly && amode&unix.W_OK != 0 {
		return unix.EROFS
	}
	op := dirOps(d).Access
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(p, amode); err != nil {
		return m.fail(d, "access", err)
	}
	return nil
}

func (m *Manager) Truncate(path string, length int64) error {
	d, p, err := m.resolvePath(path)
	if err != nil {
		return err
	}
	if d.readOnly {
		return unix.EROFS
	}
	op := dirOps(d).Truncate
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(p, length); err != nil {
		return m.fail(d, "truncate", err)
	}
	return nil
}

func (m *Manager) Ftruncate(fd int, length int64) error {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return err
	}
	if d.readOnly {
		return unix.EROFS
	}
	op := dirOps(d).Ftruncate
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(local, length); err != nil {
		return m.fail(d, "ftruncate", err)
	}
	return nil
}

func (m *Manager) Utime(path string, atime, mtime time.Time) error {
	d, p, err := m.resolvePath(path)
	if err != nil {
		return err
	}
	if d.readOnly {
		return unix.EROFS
	}
	op := dirOps(d).Utime
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(p, atime, mtime); err != nil {
		return m.fail(d, "utime", err)
	}
	return nil
}
