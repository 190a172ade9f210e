// Package hostfs mounts a host directory into the manager.
package hostfs

import (
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/macos-fuse-t/go-vfsmux/vfs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type openFile struct {
	path  string
	flags int
	f     *os.File
}

type dirStream struct {
	path    string
	f       *os.File
	entries []os.DirEntry
	loaded  bool
	pos     int
}

// PassthroughFS forwards every call to the host file system below rootPath.
// Local descriptors are small integers private to this driver.
type PassthroughFS struct {
	rootPath string

	mu        sync.Mutex
	openFiles map[int]*openFile
}

func NewPassthroughFS(rootPath string) *PassthroughFS {
	return &PassthroughFS{
		rootPath:  rootPath,
		openFiles: make(map[int]*openFile),
	}
}

// hostPath maps a driver path below rootPath; ".." never climbs above it.
func (fs *PassthroughFS) hostPath(p string) string {
	return path.Join(fs.rootPath, path.Clean("/"+p))
}

func (fs *PassthroughFS) get(fd int) (*openFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	open, ok := fs.openFiles[fd]
	if !ok {
		log.Errorf("hostfs: filehandle not found %d", fd)
		return nil, unix.EBADF
	}
	return open, nil
}

func (fs *PassthroughFS) Open(p string, flags int, mode uint32) (int, error) {
	p = fs.hostPath(p)
	f, err := os.OpenFile(p, flags, os.FileMode(mode&0777))
	if err != nil {
		log.Debugf("open %s: %v, flags %x", p, err, flags)
		return -1, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	fd := 0
	for ; ; fd++ {
		if _, ok := fs.openFiles[fd]; !ok {
			break
		}
	}
	fs.openFiles[fd] = &openFile{path: p, flags: flags, f: f}
	log.Debugf("open %s success: %d", p, fd)
	return fd, nil
}

func (fs *PassthroughFS) Close(fd int) error {
	fs.mu.Lock()
	open, ok := fs.openFiles[fd]
	delete(fs.openFiles, fd)
	fs.mu.Unlock()

	if !ok {
		log.Errorf("Close: filehandle not found %d", fd)
		return unix.EBADF
	}
	log.Debugf("closing %d", fd)
	return open.f.Close()
}

// eof turns the io.EOF of an exhausted read into a plain short count.
func eof(n int, err error) (int, error) {
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

func (fs *PassthroughFS) Read(fd int, buf []byte) (int, error) {
	open, err := fs.get(fd)
	if err != nil {
		return -1, err
	}
	return eof(open.f.Read(buf))
}

func (fs *PassthroughFS) Write(fd int, buf []byte) (int, error) {
	open, err := fs.get(fd)
	if err != nil {
		return -1, err
	}
	return open.f.Write(buf)
}

func (fs *PassthroughFS) Pread(fd int, buf []byte, off int64) (int, error) {
	open, err := fs.get(fd)
	if err != nil {
		return -1, err
	}
	return eof(open.f.ReadAt(buf, off))
}

func (fs *PassthroughFS) Pwrite(fd int, buf []byte, off int64) (int, error) {
	open, err := fs.get(fd)
	if err != nil {
		return -1, err
	}
	return open.f.WriteAt(buf, off)
}

func (fs *PassthroughFS) Lseek(fd int, off int64, whence int) (int64, error) {
	open, err := fs.get(fd)
	if err != nil {
		return -1, err
	}
	return open.f.Seek(off, whence)
}

func (fs *PassthroughFS) Fstat(fd int) (*vfs.Attributes, error) {
	open, err := fs.get(fd)
	if err != nil {
		return nil, err
	}
	info, err := open.f.Stat()
	if err != nil {
		return nil, err
	}
	return vfs.AttributesFromFileInfo(info), nil
}

func (fs *PassthroughFS) Fcntl(fd int, cmd int, arg int) (int, error) {
	open, err := fs.get(fd)
	if err != nil {
		return -1, err
	}
	return unix.FcntlInt(open.f.Fd(), cmd, arg)
}

func (fs *PassthroughFS) Fsync(fd int) error {
	open, err := fs.get(fd)
	if err != nil {
		return err
	}
	return open.f.Sync()
}

func (fs *PassthroughFS) Stat(p string) (*vfs.Attributes, error) {
	info, err := os.Lstat(fs.hostPath(p))
	if err != nil {
		return nil, err
	}
	return vfs.AttributesFromFileInfo(info), nil
}

func (fs *PassthroughFS) Link(oldpath, newpath string) error {
	return os.Link(fs.hostPath(oldpath), fs.hostPath(newpath))
}

func (fs *PassthroughFS) Unlink(p string) error {
	p = fs.hostPath(p)
	log.Debugf("removing %s", p)
	return unix.Unlink(p)
}

func (fs *PassthroughFS) Rename(src, dst string) error {
	log.Debugf("rename: %s to %s", fs.hostPath(src), fs.hostPath(dst))
	return os.Rename(fs.hostPath(src), fs.hostPath(dst))
}

func (fs *PassthroughFS) Opendir(p string) (vfs.DirStream, error) {
	p = fs.hostPath(p)
	f, err := os.Open(p)
	if err != nil {
		log.Errorf("OpenDir %s: %v", p, err)
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.IsDir() {
		f.Close()
		return nil, unix.ENOTDIR
	}
	return &dirStream{path: p, f: f}, nil
}

func (fs *PassthroughFS) stream(dir vfs.DirStream) (*dirStream, error) {
	ds, ok := dir.(*dirStream)
	if !ok || ds == nil || ds.f == nil {
		return nil, unix.EBADF
	}
	if !ds.loaded {
		entries, err := ds.f.ReadDir(-1)
		if err != nil {
			log.Debugf("ReadDir: err %v", err)
			return nil, err
		}
		ds.entries = entries
		ds.loaded = true
	}
	return ds, nil
}

func (fs *PassthroughFS) Readdir(dir vfs.DirStream) (*vfs.DirEntry, error) {
	ent := &vfs.DirEntry{}
	ok, err := fs.ReaddirR(dir, ent)
	if err != nil || !ok {
		return nil, err
	}
	return ent, nil
}

func (fs *PassthroughFS) ReaddirR(dir vfs.DirStream, entry *vfs.DirEntry) (bool, error) {
	ds, err := fs.stream(dir)
	if err != nil {
		return false, err
	}
	if ds.pos >= len(ds.entries) {
		return false, nil
	}
	de := ds.entries[ds.pos]
	ds.pos++

	*entry = vfs.DirEntry{
		Name: de.Name(),
		Type: vfs.FileTypeFromMode(de.Type()),
	}
	if info, err := de.Info(); err == nil {
		entry.Ino, _ = vfs.AttributesFromFileInfo(info).GetInodeNumber()
	}
	return true, nil
}

func (fs *PassthroughFS) Telldir(dir vfs.DirStream) (int64, error) {
	ds, err := fs.stream(dir)
	if err != nil {
		return -1, err
	}
	return int64(ds.pos), nil
}

func (fs *PassthroughFS) Seekdir(dir vfs.DirStream, loc int64) error {
	ds, err := fs.stream(dir)
	if err != nil {
		return err
	}
	if loc < 0 || loc > int64(len(ds.entries)) {
		return unix.EINVAL
	}
	ds.pos = int(loc)
	return nil
}

func (fs *PassthroughFS) Closedir(dir vfs.DirStream) error {
	ds, ok := dir.(*dirStream)
	if !ok || ds == nil || ds.f == nil {
		return unix.EBADF
	}
	err := ds.f.Close()
	ds.f = nil
	return err
}

func (fs *PassthroughFS) Mkdir(p string, mode uint32) error {
	return os.Mkdir(fs.hostPath(p), os.FileMode(mode&0777))
}

func (fs *PassthroughFS) Rmdir(p string) error {
	return unix.Rmdir(fs.hostPath(p))
}

func (fs *PassthroughFS) Access(p string, amode int) error {
	return unix.Access(fs.hostPath(p), uint32(amode))
}

func (fs *PassthroughFS) Truncate(p string, length int64) error {
	return os.Truncate(fs.hostPath(p), length)
}

func (fs *PassthroughFS) Ftruncate(fd int, length int64) error {
	open, err := fs.get(fd)
	if err != nil {
		return err
	}
	return open.f.Truncate(length)
}

func (fs *PassthroughFS) Utime(p string, atime, mtime time.Time) error {
	return os.Chtimes(fs.hostPath(p), atime, mtime)
}

// Ops returns the capability table to mount fs with.
func (fs *PassthroughFS) Ops() *vfs.Ops {
	return &vfs.Ops{
		Open:   fs.Open,
		Read:   fs.Read,
		Write:  fs.Write,
		Pread:  fs.Pread,
		Pwrite: fs.Pwrite,
		Lseek:  fs.Lseek,
		Close:  fs.Close,
		Fstat:  fs.Fstat,
		Fcntl:  fs.Fcntl,
		Fsync:  fs.Fsync,
		Dir: &vfs.DirOps{
			Stat:      fs.Stat,
			Link:      fs.Link,
			Unlink:    fs.Unlink,
			Rename:    fs.Rename,
			Opendir:   fs.Opendir,
			Readdir:   fs.Readdir,
			ReaddirR:  fs.ReaddirR,
			Telldir:   fs.Telldir,
			Seekdir:   fs.Seekdir,
			Closedir:  fs.Closedir,
			Mkdir:     fs.Mkdir,
			Rmdir:     fs.Rmdir,
			Access:    fs.Access,
			Truncate:  fs.Truncate,
			Ftruncate: fs.Ftruncate,
			Utime:     fs.Utime,
		},
		Select: &vfs.SelectOps{
			StartSelect: fs.StartSelect,
			EndSelect:   fs.EndSelect,
		},
	}
}
