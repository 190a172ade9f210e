package vfs

import (
	"errors"
	"io/fs"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// ToErrno reduces a driver error to the errno reported to the caller.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return unix.ENOENT
	case errors.Is(err, fs.ErrExist):
		return unix.EEXIST
	case errors.Is(err, fs.ErrPermission):
		return unix.EACCES
	case errors.Is(err, fs.ErrClosed):
		return unix.EBADF
	case errors.Is(err, fs.ErrInvalid):
		return unix.EINVAL
	case errors.Is(err, os.ErrDeadlineExceeded):
		return unix.EAGAIN
	}
	return unix.EIO
}
