// Package posix exposes the manager with C library conventions: calls return
// -1 (or nil) on failure and leave the error number in the caller's Reent.
package posix

import (
	"context"
	"syscall"
	"time"

	"github.com/macos-fuse-t/go-vfsmux/mux"
	"github.com/macos-fuse-t/go-vfsmux/vfs"
	"golang.org/x/sys/unix"
)

// Reent is the per-task state: the errno of the last failed call. A Reent
// must not be shared between goroutines.
type Reent struct {
	Errno syscall.Errno
	m     *mux.Manager
}

func New(m *mux.Manager) *Reent {
	return &Reent{m: m}
}

// Stat mirrors struct stat.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Blksize int32
	Blocks  int64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

// Utimbuf mirrors struct utimbuf.
type Utimbuf struct {
	Actime  time.Time
	Modtime time.Time
}

func (r *Reent) fail(err error) {
	r.Errno = vfs.ToErrno(err)
}

func (r *Reent) status(err error) int {
	if err != nil {
		r.fail(err)
		return -1
	}
	return 0
}

func (r *Reent) count(n int, err error) int {
	if err != nil {
		r.fail(err)
		return -1
	}
	return n
}

func fillStat(st *Stat, a *vfs.Attributes) {
	*st = Stat{Mode: a.Mode()}
	st.Ino, _ = a.GetInodeNumber()
	st.Rdev, _ = a.GetDeviceNumber()
	st.Nlink, _ = a.GetLinkCount()
	st.UID, _ = a.GetUID()
	st.GID, _ = a.GetGID()
	st.Size, _ = a.GetSizeBytes()
	st.Blksize, _ = a.GetBlockSize()
	st.Blocks, _ = a.GetBlocks()
	st.Atime, _ = a.GetAccessTime()
	st.Mtime, _ = a.GetLastDataModificationTime()
	st.Ctime, _ = a.GetLastStatusChangeTime()
}

func (r *Reent) Open(path string, flags int, mode uint32) int {
	return r.count(r.m.Open(path, flags, mode))
}

func (r *Reent) Read(fd int, p []byte) int {
	return r.count(r.m.Read(fd, p))
}

func (r *Reent) Write(fd int, p []byte) int {
	return r.count(r.m.Write(fd, p))
}

func (r *Reent) Pread(fd int, p []byte, off int64) int {
	return r.count(r.m.Pread(fd, p, off))
}

func (r *Reent) Pwrite(fd int, p []byte, off int64) int {
	return r.count(r.m.Pwrite(fd, p, off))
}

func (r *Reent) Lseek(fd int, off int64, whence int) int64 {
	pos, err := r.m.Lseek(fd, off, whence)
	if err != nil {
		r.fail(err)
		return -1
	}
	return pos
}

func (r *Reent) Close(fd int) int {
	return r.status(r.m.Close(fd))
}

func (r *Reent) Fstat(fd int, st *Stat) int {
	if st == nil {
		r.Errno = unix.EFAULT
		return -1
	}
	a, err := r.m.Fstat(fd)
	if err != nil {
		r.fail(err)
		return -1
	}
	fillStat(st, a)
	return 0
}

func (r *Reent) Fcntl(fd int, cmd int, arg int) int {
	return r.count(r.m.Fcntl(fd, cmd, arg))
}

func (r *Reent) Ioctl(fd int, cmd int, arg interface{}) int {
	return r.count(r.m.Ioctl(fd, cmd, arg))
}

func (r *Reent) Fsync(fd int) int {
	return r.status(r.m.Fsync(fd))
}

func (r *Reent) Stat(path string, st *Stat) int {
	if st == nil {
		r.Errno = unix.EFAULT
		return -1
	}
	a, err := r.m.Stat(path)
	if err != nil {
		r.fail(err)
		return -1
	}
	fillStat(st, a)
	return 0
}

func (r *Reent) Link(oldpath, newpath string) int {
	return r.status(r.m.Link(oldpath, newpath))
}

func (r *Reent) Unlink(path string) int {
	return r.status(r.m.Unlink(path))
}

func (r *Reent) Rename(src, dst string) int {
	return r.status(r.m.Rename(src, dst))
}

func (r *Reent) Opendir(path string) *mux.Dir {
	dir, err := r.m.Opendir(path)
	if err != nil {
		r.fail(err)
		return nil
	}
	return dir
}

// Readdir returns nil both at the end of the stream and on error; only the
// error case touches Errno.
func (r *Reent) Readdir(dir *mux.Dir) *vfs.DirEntry {
	ent, err := r.m.Readdir(dir)
	if err != nil {
		r.fail(err)
		return nil
	}
	return ent
}

// ReaddirR returns 0 and sets *result to nil at the end of the stream. Unlike
// the other calls it returns the error number instead of -1.
func (r *Reent) ReaddirR(dir *mux.Dir, entry *vfs.DirEntry, result **vfs.DirEntry) int {
	ok, err := r.m.ReaddirR(dir, entry)
	if err != nil {
		errno := vfs.ToErrno(err)
		r.Errno = errno
		return int(errno)
	}
	if result != nil {
		*result = nil
		if ok {
			*result = entry
		}
	}
	return 0
}

func (r *Reent) Telldir(dir *mux.Dir) int64 {
	loc, err := r.m.Telldir(dir)
	if err != nil {
		r.fail(err)
		return -1
	}
	return loc
}

func (r *Reent) Seekdir(dir *mux.Dir, loc int64) {
	if err := r.m.Seekdir(dir, loc); err != nil {
		r.fail(err)
	}
}

func (r *Reent) Closedir(dir *mux.Dir) int {
	return r.status(r.m.Closedir(dir))
}

func (r *Reent) Mkdir(path string, mode uint32) int {
	return r.status(r.m.Mkdir(path, mode))
}

func (r *Reent) Rmdir(path string) int {
	return r.status(r.m.Rmdir(path))
}

func (r *Reent) Access(path string, amode int) int {
	return r.status(r.m.Access(path, amode))
}

func (r *Reent) Truncate(path string, length int64) int {
	return r.status(r.m.Truncate(path, length))
}

func (r *Reent) Ftruncate(fd int, length int64) int {
	return r.status(r.m.Ftruncate(fd, length))
}

// Utime sets both times to now when times is nil.
func (r *Reent) Utime(path string, times *Utimbuf) int {
	var t Utimbuf
	if times != nil {
		t = *times
	} else {
		now := time.Now()
		t = Utimbuf{Actime: now, Modtime: now}
	}
	return r.status(r.m.Utime(path, t.Actime, t.Modtime))
}

func (r *Reent) Tcgetattr(fd int, t *vfs.Termios) int {
	if t == nil {
		r.Errno = unix.EINVAL
		return -1
	}
	got, err := r.m.Tcgetattr(fd)
	if err != nil {
		r.fail(err)
		return -1
	}
	*t = *got
	return 0
}

func (r *Reent) Tcsetattr(fd int, optionalActions int, t *vfs.Termios) int {
	return r.status(r.m.Tcsetattr(fd, optionalActions, t))
}

func (r *Reent) Tcdrain(fd int) int {
	return r.status(r.m.Tcdrain(fd))
}

func (r *Reent) Tcflush(fd int, queueSelector int) int {
	return r.status(r.m.Tcflush(fd, queueSelector))
}

func (r *Reent) Tcflow(fd int, action int) int {
	return r.status(r.m.Tcflow(fd, action))
}

func (r *Reent) Tcgetsid(fd int) int {
	return r.count(r.m.Tcgetsid(fd))
}

func (r *Reent) Tcsendbreak(fd int, duration int) int {
	return r.status(r.m.Tcsendbreak(fd, duration))
}

// Select blocks like select(2). A nil timeout waits forever.
func (r *Reent) Select(nfds int, readfds, writefds, errorfds *vfs.FdSet, timeout *unix.Timeval) int {
	wait := vfs.Forever
	if timeout != nil {
		wait = time.Duration(timeout.Nano())
		if wait < 0 {
			r.Errno = unix.EINVAL
			return -1
		}
	}
	return r.count(r.m.Select(context.Background(), nfds, readfds, writefds, errorfds, wait))
}
