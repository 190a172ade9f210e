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
		SetBlockSize(int32(st.Blksize)).
		SetUID(st.Uid).
		SetGID(st.Gid).
		SetAccessTime(time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec))).
		SetLastStatusChangeTime(time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec)))
}
