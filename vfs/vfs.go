package vfs

import (
	"context"
	"errors"
	"time"
)

// PathMax is the longest mount prefix a driver may register.
const PathMax = 15

// Forever makes Select block until a descriptor becomes ready.
const Forever = time.Duration(-1)

// ErrNotSupported is returned by StartSelect when the driver cannot track
// readiness for the requested descriptors. Those descriptors are reported as
// always ready.
var ErrNotSupported = errors.New("select not supported")

// DirStream is the driver's own directory iterator, returned by Opendir and
// handed back unchanged to the other directory calls.
type DirStream interface{}

// DirEntry mirrors struct dirent.
type DirEntry struct {
	Ino  uint64
	Type FileType
	Name string
}

// Ops is the capability table of a mounted driver. Every callback works on
// driver-local descriptors and driver-relative paths. A nil callback, or a nil
// family table, means the driver does not support that operation.
//
// Callbacks close over whatever state the driver needs, so a single driver
// type can be mounted several times with a different context each time.
type Ops struct {
	Open   func(path string, flags int, mode uint32) (int, error)
	Read   func(fd int, p []byte) (int, error)
	Write  func(fd int, p []byte) (int, error)
	Pread  func(fd int, p []byte, off int64) (int, error)
	Pwrite func(fd int, p []byte, off int64) (int, error)
	Lseek  func(fd int, off int64, whence int) (int64, error)
	Close  func(fd int) error
	Fstat  func(fd int) (*Attributes, error)
	Fcntl  func(fd int, cmd int, arg int) (int, error)
	Ioctl  func(fd int, cmd int, arg interface{}) (int, error)
	Fsync  func(fd int) error

	Dir     *DirOps
	Termios *TermiosOps
	Select  *SelectOps
}

// DirOps is the directory family. Readdir returns nil, nil at the end of the
// stream.
type DirOps struct {
	Stat      func(path string) (*Attributes, error)
	Link      func(oldpath, newpath string) error
	Unlink    func(path string) error
	Rename    func(src, dst string) error
	Opendir   func(path string) (DirStream, error)
	Readdir   func(dir DirStream) (*DirEntry, error)
	ReaddirR  func(dir DirStream, entry *DirEntry) (bool, error)
	Telldir   func(dir DirStream) (int64, error)
	Seekdir   func(dir DirStream, loc int64) error
	Closedir  func(dir DirStream) error
	Mkdir     func(path string, mode uint32) error
	Rmdir     func(path string) error
	Access    func(path string, amode int) error
	Truncate  func(path string, length int64) error
	Ftruncate func(fd int, length int64) error
	Utime     func(path string, atime, mtime time.Time) error
}

type TermiosOps struct {
	Tcgetattr   func(fd int) (*Termios, error)
	Tcsetattr   func(fd int, optionalActions int, t *Termios) error
	Tcdrain     func(fd int) error
	Tcflush     func(fd int, queueSelector int) error
	Tcflow      func(fd int, action int) error
	Tcgetsid    func(fd int) (int, error)
	Tcsendbreak func(fd int, duration int) error
}

// SelectOps lets a driver take part in a composed select.
//
// StartSelect receives the driver-local sets for this call. The driver keeps
// the requested bits, clears the sets, and from then on sets the bit of every
// local descriptor that becomes ready and signals sem. The returned value is
// passed to EndSelect, after which the driver must not touch the sets again.
//
// SocketSelect is supplied by at most one driver: the socket driver, whose
// descriptors are watched by a native poller. It receives the global sets and
// must also return when sem is signalled. SocketSemaphore hands out the
// semaphore that poller waits on, and ReleaseSocketSemaphore takes it back.
type SelectOps struct {
	StartSelect func(nfds int, readfds, writefds, errorfds *FdSet, sem Semaphore) (interface{}, error)
	EndSelect   func(handle interface{}) error

	SocketSelect           func(ctx context.Context, nfds int, readfds, writefds, errorfds *FdSet, timeout time.Duration, sem Semaphore) (int, error)
	SocketSemaphore        func() (Semaphore, error)
	ReleaseSocketSemaphore func(sem Semaphore)
}

// IsSocket reports whether the table carries a native socket select.
func (o *Ops) IsSocket() bool {
	return o != nil && o.Select != nil && o.Select.SocketSelect != nil
}
