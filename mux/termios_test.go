package mux

import (
	"testing"

	"github.com/macos-fuse-t/go-vfsmux/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestTermiosDispatch(t *testing.T) {
	m := New(Options{})
	var calls []string
	var attr vfs.Termios
	ops := &vfs.Ops{
		Open:  func(path string, flags int, mode uint32) (int, error) { return 5, nil },
		Close: func(fd int) error { return nil },
		Termios: &vfs.TermiosOps{
			Tcgetattr: func(fd int) (*vfs.Termios, error) {
				calls = append(calls, "get")
				assert.Equal(t, 5, fd)
				cp := attr
				return &cp, nil
			},
			Tcsetattr: func(fd int, optionalActions int, v *vfs.Termios) error {
				calls = append(calls, "set")
				attr = *v
				return nil
			},
			Tcflush: func(fd int, queueSelector int) error {
				if queueSelector != vfs.TCIFLUSH && queueSelector != vfs.TCOFLUSH && queueSelector != vfs.TCIOFLUSH {
					return unix.EINVAL
				}
				calls = append(calls, "flush")
				return nil
			},
		},
	}
	_, err := m.Register("/dev/uart", ops, false)
	require.NoError(t, err)

	fd, err := m.Open("/dev/uart", unix.O_RDWR, 0)
	require.NoError(t, err)

	want := vfs.Termios{Ispeed: 115200, Ospeed: 115200}
	want.SetCharSize(8)
	require.NoError(t, m.Tcsetattr(fd, vfs.TCSANOW, &want))
	got, err := m.Tcgetattr(fd)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
	assert.Equal(t, 8, got.CharSize())

	assert.Equal(t, unix.EINVAL, m.Tcsetattr(fd, vfs.TCSANOW, nil))
	require.NoError(t, m.Tcflush(fd, vfs.TCIOFLUSH))
	assert.Equal(t, unix.EINVAL, m.Tcflush(fd, 42))

	assert.Equal(t, unix.ENOSYS, m.Tcdrain(fd))
	assert.Equal(t, unix.ENOSYS, m.Tcflow(fd, vfs.TCOOFF))
	assert.Equal(t, unix.ENOSYS, m.Tcsendbreak(fd, 0))
	_, err = m.Tcgetsid(fd)
	assert.Equal(t, unix.ENOSYS, err)

	assert.Equal(t, []string{"set", "get", "flush"}, calls)

	_, err = m.Tcgetattr(fd + 1)
	assert.Equal(t, unix.EBADF, err)
}
