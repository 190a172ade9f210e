package mux

import (
	"github.com/macos-fuse-t/go-vfsmux/vfs"
	"golang.org/x/sys/unix"
)

func termiosOps(d *driver) *vfs.TermiosOps {
	if d.ops.Termios == nil {
		return &vfs.TermiosOps{}
	}
	return d.ops.Termios
}

func (m *Manager) Tcgetattr(fd int) (*vfs.Termios, error) {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return nil, err
	}
	op := termiosOps(d).Tcgetattr
	if op == nil {
		return nil, unix.ENOSYS
	}
	t, err := op(local)
	if err != nil {
		return nil, m.fail(d, "tcgetattr", err)
	}
	return t, nil
}

func (m *Manager) Tcsetattr(fd int, optionalActions int, t *vfs.Termios) error {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return err
	}
	if t == nil {
		return unix.EINVAL
	}
	op := termiosOps(d).Tcsetattr
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(local, optionalActions, t); err != nil {
		return m.fail(d, "tcsetattr", err)
	}
	return nil
}

func (m *Manager) Tcdrain(fd int) error {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return err
	}
	op := termiosOps(d).Tcdrain
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(local); err != nil {
		return m.fail(d, "tcdrain", err)
	}
	return nil
}

func (m *Manager) Tcflush(fd int, queueSelector int) error {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return err
	}
	op := termiosOps(d).Tcflush
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(local, queueSelector); err != nil {
		return m.fail(d, "tcflush", err)
	}
	return nil
}

func (m *Manager) Tcflow(fd int, action int) error {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return err
	}
	op := termiosOps(d).Tcflow
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(local, action); err != nil {
		return m.fail(d, "tcflow", err)
	}
	return nil
}

func (m *Manager) Tcgetsid(fd int) (int, error) {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return -1, err
	}
	op := termiosOps(d).Tcgetsid
	if op == nil {
		return -1, unix.ENOSYS
	}
	sid, err := op(local)
	if err != nil {
		return -1, m.fail(d, "tcgetsid", err)
	}
	return sid, nil
}

func (m *Manager) Tcsendbreak(fd int, duration int) error {
	d, local, err := m.resolveFD(fd)
	if err != nil {
		return err
	}
	op := termiosOps(d).Tcsendbreak
	if op == nil {
		return unix.ENOSYS
	}
	if err := op(local, duration); err != nil {
		return m.fail(d, "tcsendbreak", err)
	}
	return nil
}
