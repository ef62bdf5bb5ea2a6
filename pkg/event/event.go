// Package event defines what the fusion pipeline tells presentation.
//
// Every event is fire-and-forget: a Sink must return promptly and must not
// block the caller, which is usually the scheduler or the flash timer.
package event

import (
	"sync"
	"time"

	"github.com/teslashibe/go-rangegate/pkg/frame"
)

// RenderKind selects the display surface for a Render event.
type RenderKind int

const (
	// LiveFrame is the camera view with the distance overlay.
	LiveFrame RenderKind = iota
	// FilteredFrame is the detector output or the out-of-range view.
	FilteredFrame
)

// String implements fmt.Stringer.
func (k RenderKind) String() string {
	switch k {
	case LiveFrame:
		return "live"
	case FilteredFrame:
		return "filtered"
	default:
		return "unknown"
	}
}

// Render carries one frame for display.
type Render struct {
	Kind    RenderKind
	Image   frame.Packet
	Caption string
}

// Alert reports a change in the flashing warning.
type Alert struct {
	ID         string `json:"id"`
	Active     bool   `json:"active"`
	Message    string `json:"message"`
	FlashColor string `json:"flash_color"`
	Generation uint64 `json:"generation"`
}

// Status is the per-tick distance indicator.
type Status struct {
	DistanceCM int      `json:"distance_cm"`
	HasReading bool     `json:"has_reading"`
	Zone       string   `json:"zone"`
	Indicator  string   `json:"indicator"` // "too close!", "too far" or "optimal distance"
	MinCM      int      `json:"min_cm"`
	MaxCM      int      `json:"max_cm"`
	GateOpen   bool     `json:"gate_open"`
	Labels     []string `json:"labels,omitempty"`
}

// Notice is a transient message shown for TTL.
type Notice struct {
	Text string        `json:"text"`
	TTL  time.Duration `json:"ttl"`
}

// Sink consumes pipeline output.
type Sink interface {
	Render(Render)
	Alert(Alert)
	Status(Status)
	Notice(Notice)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Render(Render) {}
func (discard) Alert(Alert)   {}
func (discard) Status(Status) {}
func (discard) Notice(Notice) {}

// Multi fans each event out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return multi(append([]Sink(nil), sinks...))
}

type multi []Sink

func (m multi) Render(e Render) {
	for _, s := range m {
		s.Render(e)
	}
}

func (m multi) Alert(e Alert) {
	for _, s := range m {
		s.Alert(e)
	}
}

func (m multi) Status(e Status) {
	for _, s := range m {
		s.Status(e)
	}
}

func (m multi) Notice(e Notice) {
	for _, s := range m {
		s.Notice(e)
	}
}

// Recorder is a Sink that keeps everything it receives. It is safe for
// concurrent use.
type Recorder struct {
	mu      sync.Mutex
	renders []Render
	alerts  []Alert
	status  []Status
	notices []Notice
}

// Render implements Sink.
func (r *Recorder) Render(e Render) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, e)
}

// Alert implements Sink.
func (r *Recorder) Alert(e Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, e)
}

// Status implements Sink.
func (r *Recorder) Status(e Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, e)
}

// Notice implements Sink.
func (r *Recorder) Notice(e Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, e)
}

// Renders returns recorded renders, optionally filtered by kind.
func (r *Recorder) Renders(kinds ...RenderKind) []Render {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(kinds) == 0 {
		return append([]Render(nil), r.renders...)
	}
	var out []Render
	for _, e := range r.renders {
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Alerts returns recorded alert events.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// Statuses returns recorded status events.
func (r *Recorder) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.status...)
}

// Notices returns recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders, r.alerts, r.status, r.notices = nil, nil, nil, nil
}
