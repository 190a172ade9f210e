package vfs

import "golang.org/x/sys/unix"

type FileType int

const (
	// FileTypeUnknown is reported by drivers that do not know the type.
	FileTypeUnknown FileType = iota
	// FileTypeRegularFile means the file is a regular file.
	FileTypeRegularFile
	// FileTypeDirectory means the file is a directory.
	FileTypeDirectory
	// FileTypeSymlink means the file is a symbolic link.
	FileTypeSymlink
	// FileTypeBlockDevice means the file is a block device.
	FileTypeBlockDevice
	// FileTypeCharacterDevice means the file is a character device.
	FileTypeCharacterDevice
	// FileTypeFIFO means the file is a FIFO.
	FileTypeFIFO
	// FileTypeSocket means the file is a socket.
	FileTypeSocket
)

// Mode returns the S_IFMT bits for the type.
func (t FileType) Mode() uint32 {
	switch t {
	case FileTypeRegularFile:
		return unix.S_IFREG
	case FileTypeDirectory:
		return unix.S_IFDIR
	case FileTypeSymlink:
		return unix.S_IFLNK
	case FileTypeBlockDevice:
		return unix.S_IFBLK
	case FileTypeCharacterDevice:
		return unix.S_IFCHR
	case FileTypeFIFO:
		return unix.S_IFIFO
	case FileTypeSocket:
		return unix.S_IFSOCK
	}
	return 0
}

func (t FileType) String() string {
	switch t {
	case FileTypeRegularFile:
		return "file"
	case FileTypeDirectory:
		return "dir"
	case FileTypeSymlink:
		return "symlink"
	case FileTypeBlockDevice:
		return "block"
	case FileTypeCharacterDevice:
		return "char"
	case FileTypeFIFO:
		return "fifo"
	case FileTypeSocket:
		return "socket"
	}
	return "unknown"
}
