package vfs

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// FdSet is the POSIX fd_set used by Select, both for global descriptors and
// for the driver-local sets handed to StartSelect.
type FdSet = unix.FdSet

// FdSetSize is the number of descriptors an FdSet can hold.
const FdSetSize = int(unsafe.Sizeof(unix.FdSet{})) * 8

// FdIsSet is IsSet that tolerates a nil set or an out of range descriptor.
func FdIsSet(set *FdSet, fd int) bool {
	if set == nil || fd < 0 || fd >= FdSetSize {
		return false
	}
	return set.IsSet(fd)
}

func FdSetBit(set *FdSet, fd int) {
	if set == nil || fd < 0 || fd >= FdSetSize {
		return
	}
	set.Set(fd)
}

func FdClear(set *FdSet, fd int) {
	if set == nil || fd < 0 || fd >= FdSetSize {
		return
	}
	set.Clear(fd)
}

func FdZero(set *FdSet) {
	if set != nil {
		set.Zero()
	}
}

// FdCount returns how many of the first n descriptors are set.
func FdCount(set *FdSet, n int) int {
	cnt := 0
	for fd := 0; fd < n; fd++ {
		if FdIsSet(set, fd) {
			cnt++
		}
	}
	return cnt
}
