// Package serialdev exposes a host serial port as a character device with
// the termios family.
package serialdev

import (
	"sync"
	"time"

	"github.com/macos-fuse-t/go-vfsmux/vfs"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"golang.org/x/sys/unix"
)

// port is the part of serial.Port the driver uses.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	Drain() error
	ResetInputBuffer() error
	ResetOutputBuffer() error
	SetRTS(rts bool) error
	Break(d time.Duration) error
}

type opener func(device string, mode *serial.Mode) (port, error)

func openSerial(device string, mode *serial.Mode) (port, error) {
	return serial.Open(device, mode)
}

type uart struct {
	p     port
	tio   vfs.Termios
	flags int
}

// Device is one host serial port. It is opened at the root of its mount
// ("/dev/uart" for a device mounted at that prefix).
type Device struct {
	device string
	baud   int
	open   opener

	mu    sync.Mutex
	ports map[int]*uart
}

func New(device string, baud int) *Device {
	if baud <= 0 {
		baud = 115200
	}
	return &Device{
		device: device,
		baud:   baud,
		open:   openSerial,
		ports:  make(map[int]*uart),
	}
}

// Ports lists the serial ports of the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

func defaultTermios(baud int) vfs.Termios {
	t := vfs.Termios{
		Cflag:  vfs.CREAD | vfs.CLOCAL,
		Ispeed: uint32(baud),
		Ospeed: uint32(baud),
	}
	t.SetCharSize(8)
	return t
}

// modeOf maps the termios line settings to a serial.Mode.
func modeOf(t *vfs.Termios) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: int(t.Ospeed),
		DataBits: t.CharSize(),
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = int(t.Ispeed)
	}
	if t.Cflag&vfs.PARENB != 0 {
		mode.Parity = serial.EvenParity
		if t.Cflag&vfs.PARODD != 0 {
			mode.Parity = serial.OddParity
		}
	}
	if t.Cflag&vfs.CSTOPB != 0 {
		mode.StopBits = serial.TwoStopBits
	}
	return mode
}

func readTimeout(flags int) time.Duration {
	if flags&unix.O_NONBLOCK != 0 {
		return 0
	}
	return serial.NoTimeout
}

func (d *Device) get(fd int) (*uart, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.ports[fd]
	if !ok {
		return nil, unix.EBADF
	}
	return u, nil
}

func (d *Device) Open(path string, flags int, mode uint32) (int, error) {
	if path != "/" {
		return -1, unix.ENOENT
	}

	tio := defaultTermios(d.baud)
	p, err := d.open(d.device, modeOf(&tio))
	if err != nil {
		log.Errorf("serial: open %s: %v", d.device, err)
		return -1, unix.EIO
	}
	if err := p.SetReadTimeout(readTimeout(flags)); err != nil {
		p.Close()
		return -1, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	fd := 0
	for ; ; fd++ {
		if _, ok := d.ports[fd]; !ok {
			break
		}
	}
	d.ports[fd] = &uart{p: p, tio: tio, flags: flags}
	log.Debugf("serial: %s open as local fd %d, %d baud", d.device, fd, d.baud)
	return fd, nil
}

func (d *Device) Close(fd int) error {
	d.mu.Lock()
	u, ok := d.ports[fd]
	delete(d.ports, fd)
	d.mu.Unlock()

	if !ok {
		return unix.EBADF
	}
	return u.p.Close()
}

func (d *Device) Read(fd int, p []byte) (int, error) {
	u, err := d.get(fd)
	if err != nil {
		return -1, err
	}
	n, err := u.p.Read(p)
	if err != nil {
		return -1, err
	}
	if n == 0 && len(p) > 0 && u.flags&unix.O_NONBLOCK != 0 {
		return -1, unix.EAGAIN
	}
	return n, nil
}

func (d *Device) Write(fd int, p []byte) (int, error) {
	u, err := d.get(fd)
	if err != nil {
		return -1, err
	}
	return u.p.Write(p)
}

func (d *Device) Fstat(fd int) (*vfs.Attributes, error) {
	if _, err := d.get(fd); err != nil {
		return nil, err
	}
	a := &vfs.Attributes{}
	a.SetFileType(vfs.FileTypeCharacterDevice).SetPermissions(0666)
	return a, nil
}

func (d *Device) Fcntl(fd int, cmd int, arg int) (int, error) {
	u, err := d.get(fd)
	if err != nil {
		return -1, err
	}
	switch cmd {
	case unix.F_GETFL:
		return u.flags, nil
	case unix.F_SETFL:
		flags := u.flags&^unix.O_NONBLOCK | arg&unix.O_NONBLOCK
		if err := u.p.SetReadTimeout(readTimeout(flags)); err != nil {
			return -1, err
		}
		d.mu.Lock()
		u.flags = flags
		d.mu.Unlock()
		return 0, nil
	}
	return -1, unix.ENOSYS
}

func (d *Device) Fsync(fd int) error {
	return d.Tcdrain(fd)
}

func (d *Device) Tcgetattr(fd int) (*vfs.Termios, error) {
	u, err := d.get(fd)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t := u.tio
	return &t, nil
}

func (d *Device) Tcsetattr(fd int, optionalActions int, t *vfs.Termios) error {
	u, err := d.get(fd)
	if err != nil {
		return err
	}
	switch optionalActions {
	case vfs.TCSANOW:
	case vfs.TCSADRAIN:
		if err := u.p.Drain(); err != nil {
			return err
		}
	case vfs.TCSAFLUSH:
		if err := u.p.Drain(); err != nil {
			return err
		}
		if err := u.p.ResetInputBuffer(); err != nil {
			return err
		}
	default:
		return unix.EINVAL
	}

	mode := modeOf(t)
	if mode.BaudRate <= 0 {
		return unix.EINVAL
	}
	if err := u.p.SetMode(mode); err != nil {
		log.Errorf("serial: set mode %+v: %v", *mode, err)
		return err
	}
	d.mu.Lock()
	u.tio = *t
	d.mu.Unlock()
	return nil
}

func (d *Device) Tcdrain(fd int) error {
	u, err := d.get(fd)
	if err != nil {
		return err
	}
	return u.p.Drain()
}

func (d *Device) Tcflush(fd int, queueSelector int) error {
	u, err := d.get(fd)
	if err != nil {
		return err
	}
	switch queueSelector {
	case vfs.TCIFLUSH:
		return u.p.ResetInputBuffer()
	case vfs.TCOFLUSH:
		return u.p.ResetOutputBuffer()
	case vfs.TCIOFLUSH:
		if err := u.p.ResetInputBuffer(); err != nil {
			return err
		}
		return u.p.ResetOutputBuffer()
	}
	return unix.EINVAL
}

// Tcflow supports only input flow control, through RTS.
func (d *Device) Tcflow(fd int, action int) error {
	u, err := d.get(fd)
	if err != nil {
		return err
	}
	switch action {
	case vfs.TCIOFF:
		return u.p.SetRTS(false)
	case vfs.TCION:
		return u.p.SetRTS(true)
	case vfs.TCOOFF, vfs.TCOON:
		return unix.ENOTSUP
	}
	return unix.EINVAL
}

// Tcsendbreak sends a break of 250ms for duration 0, otherwise of duration
// tenths of a second.
func (d *Device) Tcsendbreak(fd int, duration int) error {
	u, err := d.get(fd)
	if err != nil {
		return err
	}
	if duration < 0 {
		return unix.EINVAL
	}
	length := 250 * time.Millisecond
	if duration > 0 {
		length = time.Duration(duration) * 100 * time.Millisecond
	}
	return u.p.Break(length)
}

func (d *Device) Ops() *vfs.Ops {
	return &vfs.Ops{
		Open:  d.Open,
		Read:  d.Read,
		Write: d.Write,
		Close: d.Close,
		Fstat: d.Fstat,
		Fcntl: d.Fcntl,
		Fsync: d.Fsync,
		Termios: &vfs.TermiosOps{
			Tcgetattr:   d.Tcgetattr,
			Tcsetattr:   d.Tcsetattr,
			Tcdrain:     d.Tcdrain,
			Tcflush:     d.Tcflush,
			Tcflow:      d.Tcflow,
			Tcsendbreak: d.Tcsendbreak,
		},
		// the port gives no readiness events; select reports it ready
		Select: &vfs.SelectOps{
			StartSelect: func(int, *vfs.FdSet, *vfs.FdSet, *vfs.FdSet, vfs.Semaphore) (interface{}, error) {
				return nil, vfs.ErrNotSupported
			},
		},
	}
}
