package rangefinder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-rangegate/internal/log"
)

// Config holds driver settings.
type Config struct {
	Path           string        // Serial device, e.g. /dev/ttyUSB0
	Options        PortOptions   // Line settings
	ReadTimeout    time.Duration // Upper bound on a single Poll read
	ValidateChecks bool          // Enable checksum validation
}

// DefaultConfig returns settings for a ranger on the first USB serial adapter.
func DefaultConfig() Config {
	return Config{
		Path:        "/dev/ttyUSB0",
		Options:     DefaultPortOptions(),
		ReadTimeout: 10 * time.Millisecond,
	}
}

// Driver owns the serial connection and the frame parser.
//
// Connect and Disconnect may be called from any goroutine. Poll must be
// called from a single goroutine (the polling loop).
type Driver struct {
	cfg    Config
	open   Opener
	parser *Parser
	log    *slog.Logger

	mu   sync.Mutex
	port Port
	idle uint64 // polls skipped since the port was last open

	readBuf []byte
}

// NewDriver creates a driver. A nil opener selects OpenSerial.
func NewDriver(cfg Config, open Opener) *Driver {
	if open == nil {
		open = OpenSerial
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultConfig().ReadTimeout
	}
	return &Driver{
		cfg:     cfg,
		open:    open,
		parser:  NewParser(WithChecksum(cfg.ValidateChecks)),
		log:     log.For("rangefinder").With("port", cfg.Path),
		readBuf: make([]byte, 256),
	}
}

// Connect opens the serial port. Calling Connect on a connected driver is a
// no-op.
func (d *Driver) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port != nil {
		return nil
	}

	port, err := d.open(d.cfg.Path, d.cfg.Options)
	if err != nil {
		d.log.Error("connect failed", "err", err)
		return &ConnectionError{Path: d.cfg.Path, Err: err}
	}
	if err := port.SetReadTimeout(d.cfg.ReadTimeout); err != nil {
		port.Close()
		d.log.Error("set read timeout failed", "err", err)
		return &ConnectionError{Path: d.cfg.Path, Err: err}
	}

	d.port = port
	d.idle = 0
	d.parser.Reset()
	d.log.Info("connected", "baud", d.cfg.Options.BaudRate)
	return nil
}

// Disconnect closes the port. It is safe to call more than once; calls after
// the first have no effect.
func (d *Driver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	if err != nil {
		d.log.Warn("close failed", "err", err)
		return err
	}
	d.log.Info("disconnected")
	return nil
}

// Connected reports whether the port is open.
func (d *Driver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port != nil
}

// Poll reads whatever bytes are available within the read timeout and
// returns any complete readings. Read failures are logged and produce no
// readings; the caller keeps polling.
func (d *Driver) Poll() []Reading {
	d.mu.Lock()
	port := d.port
	if port == nil {
		d.idle++
	}
	idle := d.idle
	d.mu.Unlock()

	if port == nil {
		// Warn once per disconnect; the polling loop may keep calling.
		if idle == 1 {
			d.log.Warn("poll skipped", "err", ErrNotConnected)
		} else {
			d.log.Debug("poll skipped", "err", ErrNotConnected, "skipped", idle)
		}
		return nil
	}

	n, err := port.Read(d.readBuf)
	if err != nil {
		rerr := &ReadError{Path: d.cfg.Path, Err: err}
		d.log.Warn("read failed", "err", rerr)
		return nil
	}
	if n == 0 {
		return nil
	}
	return d.parser.Feed(d.readBuf[:n])
}

// Stats returns the parser counters. Call from the polling goroutine.
func (d *Driver) Stats() ParserStats {
	return d.parser.Stats()
}
