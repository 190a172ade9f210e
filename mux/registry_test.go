package mux

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/macos-fuse-t/go-vfsmux/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRegisterPrefixValidation(t *testing.T) {
	m := New(Options{})
	ops := newMemDriver().ops()

	for _, prefix := range []string{"/", "data", "/data/", "/abcdefghijklmnop"} {
		_, err := m.Register(prefix, ops, false)
		assert.Equal(t, unix.EINVAL, errors.Cause(err), "prefix %q", prefix)
	}

	id, err := m.Register("/data", ops, false)
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	_, err = m.Register("/data", ops, false)
	assert.Equal(t, unix.EINVAL, errors.Cause(err))

	_, err = m.Register("", ops, false)
	require.NoError(t, err)
	_, err = m.Register("", ops, false)
	assert.Equal(t, unix.EINVAL, errors.Cause(err))

	_, err = m.Register("/x", nil, false)
	assert.Equal(t, unix.EINVAL, errors.Cause(err))
}

func TestRegisterFullAndReuse(t *testing.T) {
	m := New(Options{MaxDrivers: 2})
	ops := newMemDriver().ops()

	a, err := m.Register("/a", ops, false)
	require.NoError(t, err)
	b, err := m.Register("/b", ops, false)
	require.NoError(t, err)

	_, err = m.Register("/c", ops, false)
	assert.Equal(t, unix.ENOMEM, errors.Cause(err))

	require.NoError(t, m.Unregister(a))
	c, err := m.Register("/c", ops, false)
	require.NoError(t, err)
	assert.Equal(t, a, c)
	assert.NotEqual(t, b, c)
}

func TestUnregisterUnknown(t *testing.T) {
	m := New(Options{})

	err := m.Unregister(3)
	assert.Equal(t, ErrInvalidState, errors.Cause(err))

	err = m.UnregisterPath("/nothing")
	assert.Equal(t, ErrInvalidState, errors.Cause(err))
}

func TestLongestPrefixMatch(t *testing.T) {
	m := New(Options{})
	data := newMemDriver()
	sub := newMemDriver()
	fallback := newMemDriver()

	_, err := m.Register("/data", data.ops(), false)
	require.NoError(t, err)
	_, err = m.Register("/data/sub", sub.ops(), false)
	require.NoError(t, err)

	_, err = m.Open("/data1/x", unix.O_RDONLY|unix.O_CREAT, 0)
	assert.Equal(t, unix.ENOENT, err)

	_, err = m.Register("", fallback.ops(), false)
	require.NoError(t, err)

	tests := []struct {
		path string
		drv  *memDriver
		want string
	}{
		{"/data/sub/x", sub, "/x"},
		{"/data/x", data, "/x"},
		{"/data", data, "/"},
		{"/data/sub", sub, "/"},
		{"/data1/x", fallback, "/data1/x"},
		{"/other", fallback, "/other"},
	}
	for _, tt := range tests {
		fd, err := m.Open(tt.path, unix.O_RDWR|unix.O_CREAT, 0644)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, tt.drv.lastPath, tt.path)
		require.NoError(t, m.Close(fd))
	}
}

func TestSingleSocketDriver(t *testing.T) {
	m := New(Options{})
	sock := func() *vfs.Ops {
		return &vfs.Ops{Select: &vfs.SelectOps{
			SocketSelect: func(ctx context.Context, nfds int, r, w, e *vfs.FdSet, timeout time.Duration, sem vfs.Semaphore) (int, error) {
				return 0, nil
			},
			SocketSemaphore: func() (vfs.Semaphore, error) {
				return vfs.NewBinarySemaphore(), nil
			},
		}}
	}

	id, err := m.RegisterWithID(sock())
	require.NoError(t, err)

	_, err = m.RegisterWithID(sock())
	assert.Equal(t, ErrInvalidState, errors.Cause(err))

	require.NoError(t, m.Unregister(id))
	_, err = m.RegisterWithID(sock())
	require.NoError(t, err)

	noSem := sock()
	noSem.Select.SocketSemaphore = nil
	_, err = m.Register("/s", noSem, false)
	assert.Equal(t, unix.EINVAL, errors.Cause(err))
}

func TestRegisterFDRange(t *testing.T) {
	m := New(Options{MaxFDs: 16})
	d := newMemDriver()

	id, err := m.RegisterFDRange(d.ops(), 4, 6)
	require.NoError(t, err)
	for fd := 4; fd <= 6; fd++ {
		assert.Equal(t, fd, m.LocalFD(id, fd))
	}
	assert.Equal(t, -1, m.LocalFD(id, 3))

	_, err = m.RegisterFDRange(d.ops(), 2, 4)
	assert.Equal(t, unix.EINVAL, errors.Cause(err))
	// rolled back: 2 and 3 are still free
	fd, err := m.RegisterFDWithLocalFD(id, 40, false)
	require.NoError(t, err)
	assert.Equal(t, 0, fd)
	assert.Len(t, m.Mounts(), 1)

	_, err = m.RegisterFDRange(d.ops(), 10, 16)
	assert.Equal(t, unix.EINVAL, errors.Cause(err))

	// permanent descriptors survive close
	d.handles[5] = "sock"
	require.NoError(t, m.Close(5))
	assert.Equal(t, 5, m.LocalFD(id, 5))
}

func TestRegisterFDAndUnregisterFD(t *testing.T) {
	m := New(Options{})
	d := newMemDriver()

	id, err := m.RegisterWithID(d.ops())
	require.NoError(t, err)

	fd, err := m.RegisterFD(id)
	require.NoError(t, err)
	assert.Equal(t, fd, m.LocalFD(id, fd))

	fd2, err := m.RegisterFDWithLocalFD(id, 7, false)
	require.NoError(t, err)
	assert.Equal(t, 7, m.LocalFD(id, fd2))

	// only permanent descriptors can be unbound
	err = m.UnregisterFD(id, fd2)
	assert.Equal(t, unix.EINVAL, errors.Cause(err))

	require.NoError(t, m.UnregisterFD(id, fd))
	assert.Equal(t, -1, m.LocalFD(id, fd))

	_, err = m.RegisterFD(id + 1)
	assert.Equal(t, unix.EINVAL, errors.Cause(err))

	// path-less drivers are never matched by path
	_, err = m.Open("/anything", unix.O_RDONLY, 0)
	assert.Equal(t, unix.ENOENT, err)
}

func TestUnregisterDropsDescriptors(t *testing.T) {
	m := New(Options{})
	d := newMemDriver()
	d.files["/f"] = []byte("x")

	id, err := m.Register("/m", d.ops(), false)
	require.NoError(t, err)
	fd, err := m.Open("/m/f", unix.O_RDONLY, 0)
	require.NoError(t, err)

	require.NoError(t, m.UnregisterPath("/m"))
	_, err = m.Read(fd, make([]byte, 1))
	assert.Equal(t, unix.EBADF, err)
	assert.Empty(t, m.FDs())

	// the index can be reused and the old descriptor stays dead
	id2, err := m.Register("/n", newMemDriver().ops(), false)
	require.NoError(t, err)
	assert.Equal(t, id, id2)
	assert.Equal(t, -1, m.LocalFD(id2, fd))
}
