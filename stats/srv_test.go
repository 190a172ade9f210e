package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.AddOpen("/data")
	c.AddReadBytes("/data", 10)
	c.AddWriteBytes("/data", 4)
	c.AddClose("/data")
	c.AddError("#2")
	c.AddSelect(true)
	c.AddSelect(false)

	want := Stats{
		ReadBytes:      10,
		WriteBytes:     4,
		OpenCount:      1,
		CloseCount:     1,
		ErrorCount:     1,
		SelectCount:    2,
		SelectTimeouts: 1,
		Drivers: map[string]DriverStats{
			"/data": {ReadBytes: 10, WriteBytes: 4, OpenCount: 1, CloseCount: 1},
			"#2":    {ErrorCount: 1},
		},
	}
	if diff := cmp.Diff(want, c.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"#2", "/data"}, c.DriverNames())
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.AddOpen("x")
	c.AddSelect(true)
	c.Reset()
	assert.Empty(t, c.Snapshot().Drivers)
}

type fakeDumper struct{}

func (fakeDumper) DumpFDs(w io.Writer)             { fmt.Fprint(w, "fds") }
func (fakeDumper) DumpRegisteredPaths(w io.Writer) { fmt.Fprint(w, "paths") }

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.AddOpen("/data")
	srv := httptest.NewServer(NewHandler(c, fakeDumper{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	var s Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	resp.Body.Close()
	assert.Equal(t, uint64(1), s.OpenCount)

	for path, body := range map[string]string{"/fds": "fds", "/paths": "paths"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, body, string(b))
	}

	resp, err = http.Get(srv.URL + "/reset")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, c.Snapshot().OpenCount)
}

func TestStatServer(t *testing.T) {
	srv, addr, err := StatServer("127.0.0.1:0", NewHandler(NewCollector(), nil))
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + addr.String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, _, err = StatServer(addr.String(), nil)
	assert.Error(t, err)
}
