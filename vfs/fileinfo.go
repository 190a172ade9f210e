package vfs

import (
	"os"
)

// FileTypeFromMode maps an os.FileMode to the driver file type.
func FileTypeFromMode(mode os.FileMode) FileType {
	switch {
	case mode.IsRegular():
		return FileTypeRegularFile
	case mode.IsDir():
		return FileTypeDirectory
	case mode&os.ModeSymlink != 0:
		return FileTypeSymlink
	case mode&os.ModeNamedPipe != 0:
		return FileTypeFIFO
	case mode&os.ModeSocket != 0:
		return FileTypeSocket
	case mode&os.ModeCharDevice != 0:
		return FileTypeCharacterDevice
	case mode&os.ModeDevice != 0:
		return FileTypeBlockDevice
	}
	return FileTypeUnknown
}

// AttributesFromFileInfo converts a host stat result.
func AttributesFromFileInfo(info os.FileInfo) *Attributes {
	a := &Attributes{}
	a.SetFileType(FileTypeFromMode(info.Mode())).
		SetPermissions(uint32(info.Mode().Perm())).
		SetSizeBytes(info.Size()).
		SetLastDataModificationTime(info.ModTime())
	fillSysStat(a, info)
	return a
}
