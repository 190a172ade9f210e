package vfs

import (
	"time"
)

// AttributesMask tracks which fields of Attributes a driver filled in.
type AttributesMask uint32

const (
	// AttributesMaskFileType covers the upper 4 bits of st_mode.
	AttributesMaskFileType AttributesMask = 1 << iota
	// AttributesMaskPermissions covers the lowest 12 bits of st_mode.
	AttributesMaskPermissions
	// AttributesMaskInodeNumber covers st_ino.
	AttributesMaskInodeNumber
	// AttributesMaskDeviceNumber covers st_rdev.
	AttributesMaskDeviceNumber
	// AttributesMaskLinkCount covers st_nlink.
	AttributesMaskLinkCount
	// AttributesMaskSizeBytes covers st_size.
	AttributesMaskSizeBytes
	AttributesMaskBlocks
	AttributesMaskBlockSize
	AttributesMaskUserID
	AttributesMaskGroupID
	// Time of last access
	AttributesMaskAccessTime
	// Time of last data modification
	AttributesMaskLastDataModificationTime
	// Time of last status change
	AttributesMaskLastStatusChangeTime
)

// Attributes is what Fstat and Stat return: a struct stat where every field
// is optional except the file type.
type Attributes struct {
	fieldsPresent AttributesMask

	fileType     FileType
	permissions  uint32
	inodeNumber  uint64
	deviceNumber uint64
	linkCount    uint32
	sizeBytes    int64
	blocks       int64
	blockSize    int32
	uid          uint32
	gid          uint32
	aTime        time.Time
	mTime        time.Time
	cTime        time.Time
}

// GetFileType returns the file type (upper 4 bits of st_mode).
func (a *Attributes) GetFileType() FileType {
	if a.fieldsPresent&AttributesMaskFileType == 0 {
		panic("The file type attribute is mandatory, meaning it should be set when requested")
	}
	return a.fileType
}

// SetFileType sets the file type (upper 4 bits of st_mode).
func (a *Attributes) SetFileType(fileType FileType) *Attributes {
	a.fileType = fileType
	a.fieldsPresent |= AttributesMaskFileType
	return a
}

// GetPermissions returns the mode (lowest 12 bits of st_mode).
func (a *Attributes) GetPermissions() (uint32, bool) {
	return a.permissions, a.fieldsPresent&AttributesMaskPermissions != 0
}

// SetPermissions sets the mode (lowest 12 bits of st_mode).
func (a *Attributes) SetPermissions(perm uint32) *Attributes {
	a.permissions = perm & 07777
	a.fieldsPresent |= AttributesMaskPermissions
	return a
}

// Mode combines file type and permissions into st_mode.
func (a *Attributes) Mode() uint32 {
	return a.GetFileType().Mode() | a.permissions
}

func (a *Attributes) GetInodeNumber() (uint64, bool) {
	return a.inodeNumber, a.fieldsPresent&AttributesMaskInodeNumber != 0
}

func (a *Attributes) SetInodeNumber(inodeNumber uint64) *Attributes {
	a.inodeNumber = inodeNumber
	a.fieldsPresent |= AttributesMaskInodeNumber
	return a
}

// GetDeviceNumber returns the raw device number (st_rdev).
func (a *Attributes) GetDeviceNumber() (uint64, bool) {
	return a.deviceNumber, a.fieldsPresent&AttributesMaskDeviceNumber != 0
}

// SetDeviceNumber sets the raw device number (st_rdev).
func (a *Attributes) SetDeviceNumber(deviceNumber uint64) *Attributes {
	a.deviceNumber = deviceNumber
	a.fieldsPresent |= AttributesMaskDeviceNumber
	return a
}

func (a *Attributes) GetLinkCount() (uint32, bool) {
	return a.linkCount, a.fieldsPresent&AttributesMaskLinkCount != 0
}

func (a *Attributes) SetLinkCount(linkCount uint32) *Attributes {
	a.linkCount = linkCount
	a.fieldsPresent |= AttributesMaskLinkCount
	return a
}

// GetSizeBytes returns the file size (st_size).
func (a *Attributes) GetSizeBytes() (int64, bool) {
	return a.sizeBytes, a.fieldsPresent&AttributesMaskSizeBytes != 0
}

// SetSizeBytes sets the file size (st_size).
func (a *Attributes) SetSizeBytes(sizeBytes int64) *Attributes {
	a.sizeBytes = sizeBytes
	a.fieldsPresent |= AttributesMaskSizeBytes
	return a
}

func (a *Attributes) GetBlocks() (int64, bool) {
	return a.blocks, a.fieldsPresent&AttributesMaskBlocks != 0
}

func (a *Attributes) SetBlocks(blocks int64) *Attributes {
	a.blocks = blocks
	a.fieldsPresent |= AttributesMaskBlocks
	return a
}

func (a *Attributes) GetBlockSize() (int32, bool) {
	return a.blockSize, a.fieldsPresent&AttributesMaskBlockSize != 0
}

func (a *Attributes) SetBlockSize(blockSize int32) *Attributes {
	a.blockSize = blockSize
	a.fieldsPresent |= AttributesMaskBlockSize
	return a
}

func (a *Attributes) GetUID() (uint32, bool) {
	return a.uid, a.fieldsPresent&AttributesMaskUserID != 0
}

func (a *Attributes) SetUID(uid uint32) *Attributes {
	a.uid = uid
	a.fieldsPresent |= AttributesMaskUserID
	return a
}

func (a *Attributes) GetGID() (uint32, bool) {
	return a.gid, a.fieldsPresent&AttributesMaskGroupID != 0
}

func (a *Attributes) SetGID(gid uint32) *Attributes {
	a.gid = gid
	a.fieldsPresent |= AttributesMaskGroupID
	return a
}

func (a *Attributes) GetAccessTime() (time.Time, bool) {
	return a.aTime, a.fieldsPresent&AttributesMaskAccessTime != 0
}

func (a *Attributes) SetAccessTime(aTime time.Time) *Attributes {
	a.aTime = aTime
	a.fieldsPresent |= AttributesMaskAccessTime
	return a
}

// GetLastDataModificationTime returns the last data modification time
// (st_mtim).
func (a *Attributes) GetLastDataModificationTime() (time.Time, bool) {
	return a.mTime, a.fieldsPresent&AttributesMaskLastDataModificationTime != 0
}

// SetLastDataModificationTime sets the last data modification time
// (st_mtim).
func (a *Attributes) SetLastDataModificationTime(mTime time.Time) *Attributes {
	a.mTime = mTime
	a.fieldsPresent |= AttributesMaskLastDataModificationTime
	return a
}

func (a *Attributes) GetLastStatusChangeTime() (time.Time, bool) {
	return a.cTime, a.fieldsPresent&AttributesMaskLastStatusChangeTime != 0
}

func (a *Attributes) SetLastStatusChangeTime(cTime time.Time) *Attributes {
	a.cTime = cTime
	a.fieldsPresent |= AttributesMaskLastStatusChangeTime
	return a
}
