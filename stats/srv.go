package stats

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type DriverStats struct {
	ReadBytes  uint64 `json:"read-bytes"`
	WriteBytes uint64 `json:"write-bytes"`
	OpenCount  uint64 `json:"open-count"`
	CloseCount uint64 `json:"close-count"`
	ErrorCount uint64 `json:"error-count"`
}

type Stats struct {
	ReadBytes      uint64 `json:"read-bytes"`
	WriteBytes     uint64 `json:"write-bytes"`
	OpenCount      uint64 `json:"open-count"`
	CloseCount     uint64 `json:"close-count"`
	ErrorCount     uint64 `json:"error-count"`
	SelectCount    uint64 `json:"select-count"`
	SelectTimeouts uint64 `json:"select-timeouts"`

	Drivers map[string]DriverStats `json:"drivers"`
}

// Collector counts operations per driver. A nil Collector discards
// everything, so callers never have to check.
type Collector struct {
	// Mutex to protect concurrent access to stats
	mu    sync.RWMutex
	stats *Stats
}

func NewCollector() *Collector {
	return &Collector{stats: &Stats{Drivers: make(map[string]DriverStats)}}
}

func (c *Collector) update(name string, fn func(s *Stats, d *DriverStats)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.stats.Drivers[name]
	fn(c.stats, &d)
	if name != "" {
		c.stats.Drivers[name] = d
	}
}

func (c *Collector) AddReadBytes(name string, cnt uint64) {
	c.update(name, func(s *Stats, d *DriverStats) {
		s.ReadBytes += cnt
		d.ReadBytes += cnt
	})
}

func (c *Collector) AddWriteBytes(name string, cnt uint64) {
	c.update(name, func(s *Stats, d *DriverStats) {
		s.WriteBytes += cnt
		d.WriteBytes += cnt
	})
}

func (c *Collector) AddOpen(name string) {
	c.update(name, func(s *Stats, d *DriverStats) {
		s.OpenCount++
		d.OpenCount++
	})
}

func (c *Collector) AddClose(name string) {
	c.update(name, func(s *Stats, d *DriverStats) {
		s.CloseCount++
		d.CloseCount++
	})
}

func (c *Collector) AddError(name string) {
	c.update(name, func(s *Stats, d *DriverStats) {
		s.ErrorCount++
		d.ErrorCount++
	})
}

func (c *Collector) AddSelect(timedOut bool) {
	c.update("", func(s *Stats, _ *DriverStats) {
		s.SelectCount++
		if timedOut {
			s.SelectTimeouts++
		}
	})
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Stats {
	if c == nil {
		return Stats{Drivers: map[string]DriverStats{}}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := *c.stats
	s.Drivers = maps.Clone(c.stats.Drivers)
	return s
}

// DriverNames returns the drivers seen so far, sorted.
func (c *Collector) DriverNames() []string {
	s := c.Snapshot()
	names := maps.Keys(s.Drivers)
	slices.Sort(names)
	return names
}

func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = &Stats{Drivers: make(map[string]DriverStats)}
}

// Dumper prints the manager tables served at /fds and /paths.
type Dumper interface {
	DumpFDs(w io.Writer)
	DumpRegisteredPaths(w io.Writer)
}

func NewHandler(c *Collector, d Dumper) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		statsHandler(c, w, r)
	})
	mux.HandleFunc("/reset", func(w http.ResponseWriter, r *http.Request) {
		resetHandler(c, w, r)
	})
	if d != nil {
		mux.HandleFunc("/fds", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			d.DumpFDs(w)
		})
		mux.HandleFunc("/paths", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			d.DumpRegisteredPaths(w)
		})
	}
	return mux
}

// StatServer serves h on addr in the background. The returned server is
// stopped with Close or Shutdown.
func StatServer(addr string, h http.Handler) (*http.Server, net.Addr, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "stats: listen %s", addr)
	}
	srv := &http.Server{Handler: h}
	go func() {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Errorf("stats server: %v", err)
		}
	}()
	log.Infof("stats server listening on %s", l.Addr())
	return srv, l.Addr(), nil
}

func statsHandler(c *Collector, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c.Snapshot())
}

func resetHandler(c *Collector, w http.ResponseWriter, r *http.Request) {
	c.Reset()

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Stats reset successfully!"))
}
