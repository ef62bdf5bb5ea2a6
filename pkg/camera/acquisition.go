package camera

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-rangegate/internal/log"
	"github.com/teslashibe/go-rangegate/pkg/frame"
)

// Defaults for Acquisition.
const (
	DefaultRetryBackoff = 100 * time.Millisecond
	DefaultStopTimeout  = 2 * time.Second
)

// Acquisition runs the capture loop.
//
// It can be driven two ways: Open, Run and Close for callers that manage
// their own goroutines, or Start and Stop which wrap those three.
type Acquisition struct {
	cfg  Config
	open Opener
	pub  Publisher
	log  *slog.Logger

	RetryBackoff time.Duration
	StopTimeout  time.Duration

	mu        sync.Mutex
	src       Source
	latest    frame.Packet
	hasLatest bool
	seq       uint64
	errors    uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAcquisition creates an idle acquisition. pub may be nil.
func NewAcquisition(cfg Config, open Opener, pub Publisher) *Acquisition {
	return &Acquisition{
		cfg:          cfg,
		open:         open,
		pub:          pub,
		log:          log.For("camera").With("device", cfg.Device),
		RetryBackoff: DefaultRetryBackoff,
		StopTimeout:  DefaultStopTimeout,
	}
}

// Open opens the source. Calling Open on an open acquisition is a no-op.
func (a *Acquisition) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.src != nil {
		return nil
	}
	src, err := a.open(a.cfg)
	if err != nil {
		a.log.Error("open failed", "err", err)
		return &OpenError{Device: a.cfg.Device, Err: err}
	}
	a.src = src
	a.log.Info("camera opened", "width", a.cfg.Width, "height", a.cfg.Height)
	return nil
}

// Run captures until ctx is cancelled or the source is closed. Read errors
// are logged and retried after RetryBackoff.
func (a *Acquisition) Run(ctx context.Context) error {
	a.mu.Lock()
	src := a.src
	a.mu.Unlock()
	if src == nil {
		return ErrNotOpen
	}

	for ctx.Err() == nil {
		f, err := src.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.mu.Lock()
			a.errors++
			a.mu.Unlock()
			a.log.Warn("capture failed", "err", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(a.RetryBackoff):
			}
			continue
		}
		if f.Empty() {
			continue
		}

		a.mu.Lock()
		a.seq++
		f.Seq = a.seq
		if f.Captured.IsZero() {
			f.Captured = time.Now()
		}
		a.latest = f
		a.hasLatest = true
		a.mu.Unlock()

		if a.pub != nil {
			a.pub.PublishFrame(f)
		}
	}
	return nil
}

// Close releases the source. It is safe to call more than once.
func (a *Acquisition) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.src == nil {
		return nil
	}
	err := a.src.Close()
	a.src = nil
	a.hasLatest = false
	a.latest = frame.Packet{}
	if err != nil {
		a.log.Warn("close failed", "err", err)
		return err
	}
	a.log.Info("camera closed")
	return nil
}

// Start opens the source and runs the capture loop on its own goroutine.
func (a *Acquisition) Start(ctx context.Context) error {
	a.mu.Lock()
	running := a.done != nil
	a.mu.Unlock()
	if running {
		return nil
	}

	if err := a.Open(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.mu.Lock()
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	return nil
}

// Stop cancels the loop started by Start, waits up to StopTimeout for it to
// exit, then closes the source. It is idempotent. If the loop does not exit
// in time ErrStopTimeout is returned; the source is closed regardless.
func (a *Acquisition) Stop() error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	var stopErr error
	select {
	case <-done:
	case <-time.After(a.StopTimeout):
		a.log.Warn("capture loop still running after timeout", "timeout", a.StopTimeout)
		stopErr = ErrStopTimeout
	}

	if err := a.Close(); err != nil && stopErr == nil {
		stopErr = err
	}
	return stopErr
}

// CaptureLatest returns a copy of the most recent frame.
func (a *Acquisition) CaptureLatest() (frame.Packet, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasLatest {
		return frame.Packet{}, false
	}
	return a.latest.Clone(), true
}

// Stats returns frames captured and read errors since creation.
func (a *Acquisition) Stats() (frames, errors uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seq, a.errors
}
