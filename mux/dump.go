package mux

import (
	"fmt"
	"io"
	"strings"
)

// FDInfo describes one used slot of the descriptor table.
type FDInfo struct {
	FD           int    `json:"fd"`
	Driver       string `json:"driver"`
	DriverID     int    `json:"driver-id"`
	LocalFD      int    `json:"local-fd"`
	Permanent    bool   `json:"permanent"`
	SelectRefs   int    `json:"select-refs"`
	ClosePending bool   `json:"close-pending"`
}

// MountInfo describes one registered driver.
type MountInfo struct {
	ID       int    `json:"id"`
	Prefix   string `json:"prefix"`
	Pathless bool   `json:"pathless"`
	ReadOnly bool   `json:"read-only"`
	Socket   bool   `json:"socket"`
}

func (m *Manager) FDs() []FDInfo {
	var out []FDInfo
	for fd, e := range m.fds.snapshot() {
		if !e.used() {
			continue
		}
		out = append(out, FDInfo{
			FD:           fd,
			Driver:       e.drv.name(),
			DriverID:     e.drv.index,
			LocalFD:      e.localFD,
			Permanent:    e.permanent,
			SelectRefs:   e.selectRefs,
			ClosePending: e.closePending,
		})
	}
	return out
}

func (m *Manager) Mounts() []MountInfo {
	socket := m.registry.socketDriver()
	var out []MountInfo
	for _, d := range m.registry.snapshot() {
		if d == nil {
			continue
		}
		out = append(out, MountInfo{
			ID:       d.index,
			Prefix:   d.prefix,
			Pathless: d.pathless,
			ReadOnly: d.readOnly,
			Socket:   d == socket,
		})
	}
	return out
}

var dumpRule = strings.Repeat("-", 54)

// DumpFDs writes the descriptor table as a three column listing: driver,
// global descriptor, local descriptor.
func (m *Manager) DumpFDs(w io.Writer) {
	fmt.Fprintln(w, dumpRule)
	fmt.Fprintln(w, "<VFS Path Prefix>-<FD seen by App>-<FD seen by driver>")
	fmt.Fprintln(w, dumpRule)
	for _, fi := range m.FDs() {
		flags := ""
		if fi.Permanent {
			flags += " permanent"
		}
		if fi.SelectRefs > 0 {
			flags += fmt.Sprintf(" select=%d", fi.SelectRefs)
		}
		if fi.ClosePending {
			flags += " closing"
		}
		fmt.Fprintf(w, "(%s)-%d-%d%s\n", fi.Driver, fi.FD, fi.LocalFD, flags)
	}
}

// DumpRegisteredPaths writes one line per registered driver.
func (m *Manager) DumpRegisteredPaths(w io.Writer) {
	fmt.Fprintln(w, dumpRule)
	fmt.Fprintln(w, "<index>:<VFS Path Prefix> -> <flags>")
	fmt.Fprintln(w, dumpRule)
	for _, mi := range m.Mounts() {
		var flags []string
		if mi.Pathless {
			flags = append(flags, "fd-only")
		}
		if mi.ReadOnly {
			flags = append(flags, "read-only")
		}
		if mi.Socket {
			flags = append(flags, "socket")
		}
		if len(flags) == 0 {
			flags = append(flags, "-")
		}
		fmt.Fprintf(w, "%d:%s -> %s\n", mi.ID, mi.Prefix, strings.Join(flags, ","))
	}
}
