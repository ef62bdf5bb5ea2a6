package rangefinder

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Port is the minimal surface the driver needs from a serial port.
// go.bug.st/serial's Port satisfies it; tests use TestablePort.
type Port interface {
	io.ReadWriteCloser
	// SetReadTimeout bounds how long Read waits for data. A Read that times
	// out returns 0, nil.
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens a port at path.
type Opener func(path string, opts PortOptions) (Port, error)

// PortOptions describes the serial line settings.
type PortOptions struct {
	BaudRate int    `yaml:"baud_rate" json:"baud_rate"`
	DataBits int    `yaml:"data_bits" json:"data_bits"`
	StopBits int    `yaml:"stop_bits" json:"stop_bits"`
	Parity   string `yaml:"parity" json:"parity"`
}

// DefaultPortOptions returns the ranger's factory line settings (115200 8N1).
func DefaultPortOptions() PortOptions {
	return PortOptions{
		BaudRate: 115200,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
	}
}

// Normalize validates the options and fills unset fields with defaults.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	def := DefaultPortOptions()

	if opts.BaudRate <= 0 {
		opts.BaudRate = def.BaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = def.DataBits
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("%w: data bits %d must be between 5 and 8", ErrInvalidOptions, opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = def.StopBits
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("%w: stop bits %d must be 1 or 2", ErrInvalidOptions, opts.StopBits)
	}

	switch strings.ToUpper(strings.TrimSpace(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("%w: parity %q, expected N, E or O", ErrInvalidOptions, o.Parity)
	}

	return opts, nil
}

// SerialMode converts the options into go.bug.st/serial's Mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// OpenSerial opens a real serial device. It is the default Opener.
func OpenSerial(path string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// ListPorts returns the serial devices visible to the OS.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
