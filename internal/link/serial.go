//go:build linux

package link

import (
	"fmt"

	serial "github.com/daedaluz/goserial"
)

// vtimeDeciseconds bounds how long a single Read blocks in the kernel before
// returning whatever arrived (possibly nothing) to keep the non-blocking
// Link contract. It is short relative to every scheduler timeout in package
// engine so it never perturbs the protocol's own timing. termios VTIME is
// specified in tenths of a second; 1 is the smallest non-zero unit.
const vtimeDeciseconds = 1

// Serial is the production Link: an actual device node opened with the
// github.com/daedaluz/goserial package, configured with VMIN=0/VTIME=1 so
// Read returns promptly with whatever bytes are available rather than
// blocking, read in short slices.
type Serial struct {
	port *serial.Port
}

// baudFlags maps the handful of rates CodeOrb targets actually use to the
// termios speed constants the serial package exposes. Anything else is
// rejected rather than silently coerced to the nearest supported rate.
var baudFlags = map[int]serial.CFlag{
	9600:    serial.B9600,
	19200:   serial.B19200,
	38400:   serial.B38400,
	57600:   serial.B57600,
	115200:  serial.B115200,
	230400:  serial.B230400,
	460800:  serial.B460800,
	921600:  serial.B921600,
	1000000: serial.B1000000,
}

// OpenSerial opens device (e.g. "/dev/ttyUSB0") at baud and returns a Link
// ready for the scheduler to drive. It is the one real answer to the
// abstraction's "Open a device path" concern.
func OpenSerial(device string, baud int) (*Serial, error) {
	speed, ok := baudFlags[baud]
	if !ok {
		return nil, fmt.Errorf("link: unsupported baud rate %d", baud)
	}
	port, err := serial.Open(device, nil)
	if err != nil {
		return nil, err
	}
	attr, err := port.GetAttr()
	if err != nil {
		port.Close()
		return nil, err
	}
	attr.MakeRaw()
	attr.SetSpeed(speed)
	attr.Cflag |= serial.CREAD | serial.CLOCAL
	attr.Cc[serial.VMIN] = 0
	attr.Cc[serial.VTIME] = vtimeDeciseconds
	if err := port.SetAttr(serial.TCSANOW, attr); err != nil {
		port.Close()
		return nil, err
	}
	return &Serial{port: port}, nil
}

// Read implements Link. VMIN=0/VTIME=1 makes the underlying read return
// promptly with whatever is available (possibly zero bytes) rather than
// blocking, matching the non-blocking Link contract.
func (s *Serial) Read(buf []byte) (int, error) {
	return s.port.Read(buf)
}

// Write implements Link.
func (s *Serial) Write(buf []byte) (int, error) {
	return s.port.Write(buf)
}

// Close implements Link.
func (s *Serial) Close() error {
	return s.port.Close()
}

// SerialOpener is the production Opener: it opens the configured device at
// Baud every time DevUartInit asks, the concrete answer to the Link
// abstraction's "open a device path" concern.
type SerialOpener struct {
	Baud int
}

// Open implements Opener. A device that does not exist yet (e.g. before a
// udev node appears) surfaces as Err here; DevUartInit's retry-next-tick
// loop through UartInit has the same effect as a dedicated Pending result.
func (o SerialOpener) Open(device string) (Link, Outcome, error) {
	s, err := OpenSerial(device, o.Baud)
	if err != nil {
		return nil, Err, err
	}
	return s, OK, nil
}
