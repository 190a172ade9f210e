package mux

import (
	"sync"

	"golang.org/x/sys/unix"
)

// fdEntry maps one global descriptor to a driver-local one. selectRefs counts
// the select calls currently watching the descriptor; a close that arrives
// while it is non-zero only sets closePending, and the last select to finish
// performs the driver close.
type fdEntry struct {
	drv          *driver
	localFD      int
	permanent    bool
	selectRefs   int
	closePending bool
	// orphaned entries lost their driver while pinned and are freed without
	// calling it.
	orphaned bool
}

func (e *fdEntry) used() bool {
	return e.drv != nil
}

func (e *fdEntry) live() bool {
	return e.drv != nil && !e.closePending
}

type fdTable struct {
	mu      sync.Mutex
	entries []fdEntry
}

func newFDTable(n int) *fdTable {
	return &fdTable{entries: make([]fdEntry, n)}
}

func (t *fdTable) size() int {
	return len(t.entries)
}

// register takes the lowest free slot. A negative local reuses the slot
// number.
func (t *fdTable) register(d *driver, local int, permanent bool) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].used() {
			continue
		}
		if local < 0 {
			local = i
		}
		t.entries[i] = fdEntry{drv: d, localFD: local, permanent: permanent}
		return i, nil
	}
	return -1, unix.ENFILE
}

func (t *fdTable) bindRange(d *driver, min, max int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := min; i <= max; i++ {
		if t.entries[i].used() {
			for j := min; j < i; j++ {
				t.entries[j] = fdEntry{}
			}
			return unix.EINVAL
		}
		t.entries[i] = fdEntry{drv: d, localFD: i, permanent: true}
	}
	return nil
}

func (t *fdTable) unbind(d *driver, fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fd < 0 || fd >= len(t.entries) {
		return unix.EINVAL
	}
	e := &t.entries[fd]
	if e.drv != d || !e.permanent || e.closePending {
		return unix.EINVAL
	}
	if e.selectRefs > 0 {
		e.closePending = true
		e.orphaned = true
		return nil
	}
	*e = fdEntry{}
	return nil
}

func (t *fdTable) lookup(fd int) (fdEntry, bool) {
	if fd < 0 || fd >= len(t.entries) {
		return fdEntry{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[fd]
	return e, e.live()
}

// localFD returns the local descriptor of fd if it belongs to d, or -1.
func (t *fdTable) localFD(d *driver, fd int) int {
	e, ok := t.lookup(fd)
	if !ok || e.drv != d {
		return -1
	}
	return e.localFD
}

// beginClose detaches fd. It reports whether the driver close has to run
// now; when a select still watches fd the close is left to endSelect.
func (t *fdTable) beginClose(fd int) (fdEntry, bool, error) {
	if fd < 0 || fd >= len(t.entries) {
		return fdEntry{}, false, unix.EBADF
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := &t.entries[fd]
	if !e.live() {
		return fdEntry{}, false, unix.EBADF
	}
	snap := *e
	if e.permanent {
		return snap, true, nil
	}
	if e.selectRefs > 0 {
		e.closePending = true
		return snap, false, nil
	}
	*e = fdEntry{}
	return snap, true, nil
}

// startSelect pins fd for one select call and returns a stable copy of its
// mapping.
func (t *fdTable) startSelect(fd int) (fdEntry, bool) {
	if fd < 0 || fd >= len(t.entries) {
		return fdEntry{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := &t.entries[fd]
	if !e.live() {
		return fdEntry{}, false
	}
	e.selectRefs++
	return *e, true
}

// endSelect unpins fds. Entries whose close was deferred and which are no
// longer watched are freed; the ones that still need a driver close are
// returned.
func (t *fdTable) endSelect(fds []int) []fdEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var due []fdEntry
	for _, fd := range fds {
		e := &t.entries[fd]
		if e.selectRefs == 0 {
			continue
		}
		e.selectRefs--
		if e.selectRefs > 0 || !e.closePending {
			continue
		}
		if !e.orphaned {
			due = append(due, *e)
		}
		*e = fdEntry{}
	}
	return due
}

func (t *fdTable) dropDriver(d *driver) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		e := &t.entries[i]
		if e.drv != d {
			continue
		}
		if e.selectRefs > 0 {
			e.closePending = true
			e.orphaned = true
			continue
		}
		*e = fdEntry{}
	}
}

func (t *fdTable) snapshot() []fdEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]fdEntry(nil), t.entries...)
}
