package mux

import (
	"testing"

	"github.com/macos-fuse-t/go-vfsmux/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRenameAcrossDrivers(t *testing.T) {
	m := New(Options{})
	a := newMemDriver()
	b := newMemDriver()
	a.files["/f"] = []byte("x")
	_, err := m.Register("/a", a.ops(), false)
	require.NoError(t, err)
	_, err = m.Register("/b", b.ops(), false)
	require.NoError(t, err)

	assert.Equal(t, unix.EXDEV, m.Rename("/a/f", "/b/f"))
	assert.Equal(t, unix.EXDEV, m.Link("/a/f", "/b/f"))
	assert.Contains(t, a.files, "/f")
	assert.Empty(t, b.files)

	require.NoError(t, m.Rename("/a/f", "/a/g"))
	assert.Contains(t, a.files, "/g")
	assert.NotContains(t, a.files, "/f")

	assert.Equal(t, unix.ENOENT, m.Rename("/a/missing", "/a/h"))
	assert.Equal(t, unix.ENOENT, m.Rename("/none/f", "/a/h"))
}

func TestDirStreamOutlivingDriver(t *testing.T) {
	m := New(Options{})
	id, err := m.Register("/a", newMemDriver().ops(), false)
	require.NoError(t, err)

	dir, err := m.Opendir("/a")
	require.NoError(t, err)
	ent, err := m.Readdir(dir)
	require.NoError(t, err)
	assert.Nil(t, ent)

	require.NoError(t, m.Unregister(id))
	_, err = m.Readdir(dir)
	assert.Equal(t, unix.EBADF, err)
	assert.Equal(t, unix.EBADF, m.Closedir(dir))
}

func TestClosedirInvalidatesStream(t *testing.T) {
	m := New(Options{})
	_, err := m.Register("/a", newMemDriver().ops(), false)
	require.NoError(t, err)

	dir, err := m.Opendir("/a/sub")
	require.NoError(t, err)
	require.NoError(t, m.Closedir(dir))
	assert.Equal(t, unix.EBADF, m.Closedir(dir))
	_, err = m.Telldir(dir)
	assert.Equal(t, unix.EBADF, err)
	assert.Equal(t, unix.EBADF, m.Seekdir(nil, 0))
}

func TestDirCallsPassTranslatedPaths(t *testing.T) {
	m := New(Options{})
	var got []string
	ops := &vfs.Ops{Dir: &vfs.DirOps{
		Stat: func(path string) (*vfs.Attributes, error) {
			got = append(got, path)
			return (&vfs.Attributes{}).SetFileType(vfs.FileTypeDirectory), nil
		},
		Mkdir: func(path string, mode uint32) error {
			got = append(got, path)
			return nil
		},
		Access: func(path string, amode int) error {
			got = append(got, path)
			return unix.EACCES
		},
	}}
	_, err := m.Register("/dev", ops, false)
	require.NoError(t, err)

	a, err := m.Stat("/dev")
	require.NoError(t, err)
	assert.Equal(t, vfs.FileTypeDirectory, a.GetFileType())
	require.NoError(t, m.Mkdir("/dev/x/y", 0755))
	assert.Equal(t, unix.EACCES, m.Access("/dev/z", unix.R_OK))
	assert.Equal(t, []string{"/", "/x/y", "/z"}, got)
}
