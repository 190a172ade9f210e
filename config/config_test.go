package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIni(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vfsmux.ini")
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestDefaults(t *testing.T) {
	cfg, err := NewConfig([]string{"/nonexistent/vfsmux.ini"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.MaxFDs)
	assert.Equal(t, 8, cfg.MaxDrivers)
	assert.Equal(t, 10*time.Millisecond, cfg.Tick)
	assert.True(t, cfg.Console)
	assert.Empty(t, cfg.Mounts)
}

func TestIniAndMounts(t *testing.T) {
	p := writeIni(t, `
[Default]
debug = true
max_fds = 32
tick = 20ms
stats_addr = 127.0.0.1:9000

[mount "data"]
type = host
prefix = /data
root = /tmp
readonly = true

[mount "uart"]
type = serial
prefix = /dev/uart
device = /dev/ttyUSB0
baud = 9600

[mount "sock"]
type = socket
min_fd = 48
max_fd = 63

[mount "events"]
type = eventfd
`)
	cfg, err := NewConfig([]string{"/nonexistent.ini", p}, nil)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 32, cfg.MaxFDs)
	assert.Equal(t, 20*time.Millisecond, cfg.Tick)
	assert.Equal(t, "127.0.0.1:9000", cfg.StatsAddr)

	want := []Mount{
		{Name: "data", Type: MountHost, Prefix: "/data", Root: "/tmp", ReadOnly: true, Baud: 115200, MaxEvents: 5, MinFD: -1, MaxFD: -1},
		{Name: "uart", Type: MountSerial, Prefix: "/dev/uart", Device: "/dev/ttyUSB0", Baud: 9600, MaxEvents: 5, MinFD: -1, MaxFD: -1},
		{Name: "sock", Type: MountSocket, Baud: 115200, MaxEvents: 5, MinFD: 48, MaxFD: 63},
		{Name: "events", Type: MountEventfd, Baud: 115200, MaxEvents: 5, MinFD: -1, MaxFD: -1},
	}
	if diff := cmp.Diff(want, cfg.Mounts); diff != "" {
		t.Errorf("mounts mismatch (-want +got):\n%s", diff)
	}
}

func TestFlagsOverrideIni(t *testing.T) {
	p := writeIni(t, "[Default]\ndebug = true\nmax_fds = 32\n")
	cfg, err := NewConfig([]string{p}, []string{"--debug=false", "--max_fds", "16", "-s", ""})
	require.NoError(t, err)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 16, cfg.MaxFDs)
	assert.Empty(t, cfg.StatsAddr)
}

func TestBadMount(t *testing.T) {
	for name, body := range map[string]string{
		"unknown type":  "[mount \"x\"]\ntype = floppy\n",
		"host no root":  "[mount \"x\"]\ntype = host\nprefix = /x\n",
		"serial no dev": "[mount \"x\"]\ntype = serial\nprefix = /x\n",
		"socket range":  "[mount \"x\"]\ntype = socket\nmin_fd = 10\nmax_fd = 5\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewConfig([]string{writeIni(t, body)}, nil)
			assert.Error(t, err)
		})
	}
}

func TestBadFlag(t *testing.T) {
	_, err := NewConfig(nil, []string{"--no_such_flag"})
	assert.Error(t, err)
}
