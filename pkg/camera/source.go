package camera

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-rangegate/pkg/frame"
)

// Sentinel errors.
var (
	ErrOpen        = errors.New("camera: open failed")
	ErrClosed      = errors.New("camera: source closed")
	ErrNotOpen     = errors.New("camera: not open")
	ErrStopTimeout = errors.New("camera: capture loop did not stop in time")
)

// Source produces frames.
type Source interface {
	// Read blocks until the next frame is available. The returned packet is
	// owned by the caller. An empty packet with a nil error means no frame
	// arrived in time; the caller simply reads again.
	Read() (frame.Packet, error)

	// Close releases the device. Read calls after Close return ErrClosed.
	Close() error
}

// Opener opens a Source for cfg.
type Opener func(cfg Config) (Source, error)

// Publisher receives every captured frame. It must copy what it keeps.
type Publisher interface {
	PublishFrame(frame.Packet)
}

// OpenError reports a device that could not be opened.
type OpenError struct {
	Device string
	Err    error
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("camera: open %s: %v", e.Device, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpenError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrOpen) match.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}
