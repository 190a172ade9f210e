package vfs

import (
	"context"
	"time"
)

// Semaphore is the wake-up primitive shared by every driver taking part in
// one select call. Drivers call Signal when one of their descriptors becomes
// ready.
type Semaphore interface {
	Signal()
	// TryWait takes the semaphore without blocking.
	TryWait() bool
}

// BinarySemaphore is the semaphore select creates when no socket driver is
// involved.
type BinarySemaphore struct {
	ch chan struct{}
}

func NewBinarySemaphore() *BinarySemaphore {
	return &BinarySemaphore{ch: make(chan struct{}, 1)}
}

func (s *BinarySemaphore) Signal() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *BinarySemaphore) TryWait() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Wait takes the semaphore, giving up after timeout. A negative timeout waits
// until the semaphore is signalled or ctx is done.
func (s *BinarySemaphore) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout == 0 {
		return s.TryWait(), nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-s.ch:
		return true, nil
	case <-expired:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
