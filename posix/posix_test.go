package posix

import (
	"testing"
	"time"

	"github.com/macos-fuse-t/go-vfsmux/mux"
	"github.com/macos-fuse-t/go-vfsmux/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newReent(t *testing.T) *Reent {
	m := mux.New(mux.Options{})
	data := map[int][]byte{}
	next := 3
	ops := &vfs.Ops{
		Open: func(path string, flags int, mode uint32) (int, error) {
			if path == "/missing" {
				return -1, unix.ENOENT
			}
			next++
			data[next] = nil
			return next, nil
		},
		Write: func(fd int, p []byte) (int, error) {
			data[fd] = append(data[fd], p...)
			return len(p), nil
		},
		Close: func(fd int) error {
			delete(data, fd)
			return nil
		},
		Fstat: func(fd int) (*vfs.Attributes, error) {
			return (&vfs.Attributes{}).
				SetFileType(vfs.FileTypeRegularFile).
				SetPermissions(0644).
				SetSizeBytes(int64(len(data[fd]))), nil
		},
	}
	_, err := m.Register("/mem", ops, false)
	require.NoError(t, err)
	return New(m)
}

func TestOpenWriteFstat(t *testing.T) {
	r := newReent(t)

	fd := r.Open("/mem/f", unix.O_RDWR|unix.O_CREAT, 0644)
	require.Equal(t, 0, fd)
	assert.Equal(t, 3, r.Write(fd, []byte("abc")))

	var st Stat
	require.Equal(t, 0, r.Fstat(fd, &st))
	assert.Equal(t, int64(3), st.Size)
	assert.Equal(t, uint32(unix.S_IFREG|0644), st.Mode)

	assert.Equal(t, 0, r.Close(fd))
	assert.Zero(t, r.Errno)
}

func TestErrnoIsSet(t *testing.T) {
	r := newReent(t)

	assert.Equal(t, -1, r.Open("/mem/missing", unix.O_RDONLY, 0))
	assert.Equal(t, unix.ENOENT, r.Errno)

	assert.Equal(t, -1, r.Read(7, make([]byte, 1)))
	assert.Equal(t, unix.EBADF, r.Errno)

	fd := r.Open("/mem/f", unix.O_RDWR, 0)
	require.GreaterOrEqual(t, fd, 0)
	assert.Equal(t, -1, r.Read(fd, make([]byte, 1)))
	assert.Equal(t, unix.ENOSYS, r.Errno)

	assert.Equal(t, -1, r.Fstat(fd, nil))
	assert.Equal(t, unix.EFAULT, r.Errno)

	assert.Nil(t, r.Opendir("/mem"))
	assert.Equal(t, unix.ENOSYS, r.Errno)

	assert.Equal(t, -1, r.Rename("/mem/a", "/other/b"))
	assert.Equal(t, unix.ENOENT, r.Errno)

	var tios vfs.Termios
	assert.Equal(t, -1, r.Tcgetattr(fd, &tios))
	assert.Equal(t, unix.ENOSYS, r.Errno)
}

func TestSelectTimeval(t *testing.T) {
	r := newReent(t)
	fd := r.Open("/mem/f", unix.O_RDWR|unix.O_CREAT, 0)
	require.Equal(t, 0, fd)

	// no select support: always ready
	var rs vfs.FdSet
	rs.Set(fd)
	tv := unix.NsecToTimeval(int64(time.Second))
	assert.Equal(t, 1, r.Select(1, &rs, nil, nil, &tv))
	assert.True(t, rs.IsSet(fd))

	bad := unix.Timeval{Sec: -1}
	assert.Equal(t, -1, r.Select(1, &rs, nil, nil, &bad))
	assert.Equal(t, unix.EINVAL, r.Errno)

	assert.Equal(t, -1, r.Select(-1, nil, nil, nil, &tv))
	assert.Equal(t, unix.EINVAL, r.Errno)
}
