// Package pipeline owns the three acquisition and fusion loops and their
// start/stop lifecycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-rangegate/internal/log"
	"github.com/teslashibe/go-rangegate/pkg/rangefinder"
)

// ErrJoinTimeout is returned by Stop when the loops do not exit within
// JoinTimeout. Hardware is released anyway.
var ErrJoinTimeout = errors.New("pipeline: loops did not stop in time")

// Ranger is the range sensor as the pipeline uses it.
type Ranger interface {
	Connect() error
	Disconnect() error
	Poll() []rangefinder.Reading
}

// Camera is frame acquisition as the pipeline uses it.
type Camera interface {
	Open() error
	Run(ctx context.Context) error
	Close() error
}

// Scheduler is the fusion tick loop.
type Scheduler interface {
	Run(ctx context.Context) error
}

// State receives distances and is reset on stop.
type State interface {
	PublishDistance(rangefinder.Reading)
	Reset()
}

// Alert is cleared on stop.
type Alert interface {
	Clear()
}

// Config holds loop timing.
type Config struct {
	PollInterval time.Duration // sleep between ranger polls
	JoinTimeout  time.Duration // bound on waiting for loops at Stop
}

// DefaultConfig returns a 10 ms poll interval and a 2 s join timeout.
func DefaultConfig() Config {
	return Config{
		PollInterval: 10 * time.Millisecond,
		JoinTimeout:  2 * time.Second,
	}
}

// Deps are the collaborators a Pipeline runs.
type Deps struct {
	Ranger    Ranger
	Camera    Camera
	Scheduler Scheduler
	State     State
	Alert     Alert
}

// Status describes the pipeline for the dashboard.
type Status struct {
	Running   bool      `json:"running"`
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Pipeline runs the range poll loop, the camera loop and the scheduler.
// Start and Stop may be called from any goroutine; they are serialised, so
// a Start issued while a Stop is joining waits for the hardware to be
// released and then opens it again.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	// lifecycle is held for the whole of Start and Stop.
	lifecycle sync.Mutex

	mu        sync.Mutex
	running   bool // hardware held and loops launched
	exited    bool // the loops of the current run have all returned
	runID     string
	startedAt time.Time
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an idle pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = def.JoinTimeout
	}
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		log:  log.For("pipeline"),
	}
}

// Start connects the hardware and launches the loops. Starting a running
// pipeline is a no-op unless its loops have died, in which case the
// hardware is released and the pipeline restarted. If either device fails
// to open, whatever was opened is released and the error returned.
func (p *Pipeline) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	running, exited := p.running, p.exited
	p.mu.Unlock()

	if running {
		if !exited {
			return nil
		}
		p.log.Warn("loops exited, restarting")
		if err := p.stop(); err != nil {
			p.log.Warn("release before restart", "err", err)
		}
	}

	if err := p.deps.Ranger.Connect(); err != nil {
		return fmt.Errorf("start ranger: %w", err)
	}
	if err := p.deps.Camera.Open(); err != nil {
		p.deps.Ranger.Disconnect()
		return fmt.Errorf("start camera: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return p.pollLoop(gctx) })
	g.Go(func() error { return p.deps.Camera.Run(gctx) })
	g.Go(func() error { return p.deps.Scheduler.Run(gctx) })

	done := make(chan struct{})
	runID := uuid.NewString()

	p.mu.Lock()
	p.running = true
	p.exited = false
	p.runID = runID
	p.startedAt = time.Now()
	p.lastErr = nil
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		err := g.Wait()

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.runID != runID {
			return
		}
		p.exited = true
		if err != nil {
			p.log.Error("loop failed", "run_id", runID, "err", err)
			p.lastErr = err
		}
	}()

	p.log.Info("pipeline started", "run_id", runID)
	return nil
}

// Stop cancels the loops, waits up to JoinTimeout for them, then
// disconnects the ranger, closes the camera, resets the shared state and
// clears the alert. It is safe to call on a stopped pipeline.
func (p *Pipeline) Stop() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.stop()
}

func (p *Pipeline) stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel, done, runID := p.cancel, p.done, p.runID
	p.mu.Unlock()

	cancel()

	var stopErr error
	timer := time.NewTimer(p.cfg.JoinTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		p.log.Warn("loops still running after join timeout, releasing hardware", "timeout", p.cfg.JoinTimeout)
		stopErr = ErrJoinTimeout
	}

	if err := p.deps.Ranger.Disconnect(); err != nil {
		p.log.Warn("ranger disconnect failed", "err", err)
		stopErr = errors.Join(stopErr, err)
	}
	if err := p.deps.Camera.Close(); err != nil {
		p.log.Warn("camera close failed", "err", err)
		stopErr = errors.Join(stopErr, err)
	}
	p.deps.State.Reset()
	p.deps.Alert.Clear()

	p.mu.Lock()
	p.running = false
	p.exited = false
	p.runID = ""
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	p.log.Info("pipeline stopped", "run_id", runID)
	return stopErr
}

// Running reports whether the loops are active. A run whose loops have all
// exited reports false even before Stop releases the hardware.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && !p.exited
}

// Status returns a snapshot for the dashboard.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Status{Running: p.running && !p.exited}
	if p.running {
		s.RunID = p.runID
		s.StartedAt = p.startedAt
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

func (p *Pipeline) pollLoop(ctx context.Context) error {
	timer := time.NewTimer(p.cfg.PollInterval)
	defer timer.Stop()

	for {
		if readings := p.deps.Ranger.Poll(); len(readings) > 0 {
			p.deps.State.PublishDistance(readings[len(readings)-1])
		}

		timer.Reset(p.cfg.PollInterval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}
