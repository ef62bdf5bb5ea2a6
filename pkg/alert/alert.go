// Package alert implements the flashing obstacle warning.
//
// The warning is either inactive or active. While active, a timer toggles
// the emphasis colour every flash interval. Each transition bumps a
// generation counter; a toggle scheduled under an older generation does
// nothing and does not reschedule, so clearing an alert stops the flashing
// even if a timer callback is already running.
package alert

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/teslashibe/go-rangegate/internal/log"
	"github.com/teslashibe/go-rangegate/pkg/event"
)

// Emphasis colours alternated while flashing.
const (
	ColorPrimary   = "#FF5722"
	ColorSecondary = "#FFEB3B"
)

// DefaultFlashInterval is the time between colour toggles.
const DefaultFlashInterval = 500 * time.Millisecond

// State is a snapshot of the warning.
type State struct {
	Active     bool
	Message    string
	FlashingOn bool
	Generation uint64
}

// Color returns the emphasis colour for the current flash phase, or "" when
// inactive.
func (s State) Color() string {
	switch {
	case !s.Active:
		return ""
	case s.FlashingOn:
		return ColorPrimary
	default:
		return ColorSecondary
	}
}

// Controller owns the warning state and its flash timer. All methods are
// safe for concurrent use. Events are emitted while the controller's lock
// is held so they reach the sink in transition order; the sink must not
// call back into the Controller.
type Controller struct {
	clock    clockwork.Clock
	sink     event.Sink
	interval time.Duration
	log      *slog.Logger

	mu    sync.Mutex
	state State
	id    string
	timer clockwork.Timer
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock. Tests pass a clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(a *Controller) { a.clock = c }
}

// WithInterval sets the flash interval.
func WithInterval(d time.Duration) Option {
	return func(a *Controller) {
		if d > 0 {
			a.interval = d
		}
	}
}

// New creates an inactive Controller that reports to sink.
func New(sink event.Sink, opts ...Option) *Controller {
	if sink == nil {
		sink = event.Discard
	}
	c := &Controller{
		clock:    clockwork.NewRealClock(),
		sink:     sink,
		interval: DefaultFlashInterval,
		log:      log.For("alert"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate raises the warning with message. If the warning is already
// active only the message changes; the generation and the flash timer are
// left alone.
func (c *Controller) Activate(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Active {
		c.state.Message = message
		return
	}

	c.state = State{
		Active:     true,
		Message:    message,
		FlashingOn: true,
		Generation: c.state.Generation + 1,
	}
	c.id = uuid.NewString()
	c.log.Info("alert raised", "id", c.id, "message", message)

	c.emitLocked()
	c.scheduleLocked(c.state.Generation)
}

// Clear drops the warning and cancels the pending toggle. It is a no-op
// when the warning is inactive.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Active {
		return
	}

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.state = State{Generation: c.state.Generation + 1}
	c.log.Info("alert cleared", "id", c.id)

	c.emitLocked()
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ID returns the identifier of the current or most recent activation.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Controller) scheduleLocked(gen uint64) {
	c.timer = c.clock.AfterFunc(c.interval, func() { c.toggle(gen) })
}

func (c *Controller) toggle(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Active || c.state.Generation != gen {
		return
	}

	c.state.FlashingOn = !c.state.FlashingOn
	c.emitLocked()
	c.scheduleLocked(gen)
}

func (c *Controller) emitLocked() {
	c.sink.Alert(event.Alert{
		ID:         c.id,
		Active:     c.state.Active,
		Message:    c.state.Message,
		FlashColor: c.state.Color(),
		Generation: c.state.Generation,
	})
}
