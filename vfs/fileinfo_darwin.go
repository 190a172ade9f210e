package vfs

import (
	"os"
	"syscall"
	"time"
)

func fillSysStat(a *Attributes, info os.FileInfo) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	a.SetInodeNumber(st.Ino).
		SetDeviceNumber(uint64(st.Rdev)).
		SetLinkCount(uint32(st.Nlink)).
		SetBlocks(st.Blocks).
		SetBlockSize(st.Blksize).
		SetUID(st.Uid).
		SetGID(st.Gid).
		SetAccessTime(time.Unix(st.Atimespec.Sec, st.Atimespec.Nsec)).
		SetLastStatusChangeTime(time.Unix(st.Ctimespec.Sec, st.Ctimespec.Nsec))
}
