package vfs

// NCCS is the size of the control character array.
const NCCS = 32

// Termios is the terminal state exchanged with the termios family. Speeds
// are plain baud rates.
type Termios struct {
	Iflag  uint32
	Oflag  uint32
	Cflag  uint32
	Lflag  uint32
	Cc     [NCCS]uint8
	Ispeed uint32
	Ospeed uint32
}

// tcsetattr optional actions
const (
	TCSANOW = iota
	TCSADRAIN
	TCSAFLUSH
)

// tcflush queue selectors
const (
	TCIFLUSH = iota
	TCOFLUSH
	TCIOFLUSH
)

// tcflow actions
const (
	TCOOFF = iota
	TCOON
	TCIOFF
	TCION
)

// c_cflag bits
const (
	CSIZE   = 0o60
	CS5     = 0o0
	CS6     = 0o20
	CS7     = 0o40
	CS8     = 0o60
	CSTOPB  = 0o100
	CREAD   = 0o200
	PARENB  = 0o400
	PARODD  = 0o1000
	HUPCL   = 0o2000
	CLOCAL  = 0o4000
	CRTSCTS = 0o20000000000
)

// CharSize returns the number of data bits selected by Cflag.
func (t *Termios) CharSize() int {
	switch t.Cflag & CSIZE {
	case CS5:
		return 5
	case CS6:
		return 6
	case CS7:
		return 7
	}
	return 8
}

// SetCharSize selects 5 to 8 data bits.
func (t *Termios) SetCharSize(bits int) {
	t.Cflag &^= CSIZE
	switch bits {
	case 5:
		t.Cflag |= CS5
	case 6:
		t.Cflag |= CS6
	case 7:
		t.Cflag |= CS7
	default:
		t.Cflag |= CS8
	}
}
