package sockfs

import (
	"golang.org/x/sys/unix"
)

// pipeSemaphore is a semaphore a poller can wait on: Signal makes the read
// end readable.
type pipeSemaphore struct {
	r, w int
}

func newPipeSemaphore() (*pipeSemaphore, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, err
	}
	for _, fd := range p {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, err
		}
	}
	return &pipeSemaphore{r: p[0], w: p[1]}, nil
}

func (s *pipeSemaphore) Signal() {
	// a full pipe is already signalled
	unix.Write(s.w, []byte{1})
}

// TryWait drains every pending signal.
func (s *pipeSemaphore) TryWait() bool {
	var buf [64]byte
	taken := false
	for {
		n, err := unix.Read(s.r, buf[:])
		if n <= 0 || err != nil {
			return taken
		}
		taken = true
	}
}

func (s *pipeSemaphore) close() {
	unix.Close(s.r)
	unix.Close(s.w)
}
