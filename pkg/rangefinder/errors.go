package rangefinder

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrConnect is wrapped by every ConnectionError.
	ErrConnect = errors.New("rangefinder: connect failed")

	// ErrNotConnected is returned when the port is used before Connect.
	ErrNotConnected = errors.New("rangefinder: not connected")

	// ErrInvalidOptions is returned for unusable serial settings.
	ErrInvalidOptions = errors.New("rangefinder: invalid serial options")
)

// ConnectionError reports a failure to open the serial port.
type ConnectionError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rangefinder: connect %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrConnect) match any ConnectionError.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnect
}

// ReadError reports an I/O failure while polling.
type ReadError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("rangefinder: read %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}

var errClosed = errors.New("rangefinder: port closed")
