package bonjour

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListenAddr(t *testing.T) {
	host, port, err := parseListenAddr("127.0.0.1:8082")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, 8082, port)

	host, port, err = parseListenAddr(":9000")
	require.NoError(t, err)
	assert.Empty(t, host)
	assert.Equal(t, 9000, port)

	_, _, err = parseListenAddr("localhost")
	assert.Error(t, err)
	_, _, err = parseListenAddr("localhost:http")
	assert.Error(t, err)
}

func TestTxtRecords(t *testing.T) {
	assert.Equal(t, []string{"path=/", "ep0=/fds", "ep1=/paths"}, txtRecords([]string{"/fds", "/paths"}))
}

func TestFindInterfaceByAddress(t *testing.T) {
	ifaces, err := findInterfaceByAddress("")
	assert.NoError(t, err)
	assert.Nil(t, ifaces)

	_, err = findInterfaceByAddress("192.0.2.255")
	assert.Error(t, err)
}
