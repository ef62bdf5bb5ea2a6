package detection

import (
	"sync"

	"github.com/teslashibe/go-rangegate/pkg/frame"
)

// Mock is a scripted Detector for tests and dev runs.
//
// Each Detect call pops the next entry from Script. When the script is
// exhausted the last entry repeats; an empty script detects nothing.
type Mock struct {
	mu     sync.Mutex
	Script []MockStep
	calls  []frame.Packet
	closed bool
}

// MockStep is one scripted Detect outcome.
type MockStep struct {
	Labels []string
	Err    error
}

// NewMock returns a Mock that answers with steps in order.
func NewMock(steps ...MockStep) *Mock {
	return &Mock{Script: steps}
}

// Detect implements Detector. The annotated frame is a copy of f.
func (m *Mock) Detect(f frame.Packet) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, f.Clone())

	if f.Empty() {
		return Result{}, &Error{Backend: "mock", Err: ErrEmptyFrame}
	}

	var step MockStep
	switch {
	case len(m.Script) == 0:
	case len(m.Script) == 1:
		step = m.Script[0]
	default:
		step = m.Script[0]
		m.Script = m.Script[1:]
	}

	if step.Err != nil {
		return Result{}, &Error{Backend: "mock", Err: step.Err}
	}

	objs := make([]Object, len(step.Labels))
	for i, l := range step.Labels {
		objs[i] = Object{Label: l, X: 0.25, Y: 0.25, W: 0.5, H: 0.5, Confidence: 0.9}
	}
	return Result{
		Labels:    append([]string(nil), step.Labels...),
		Objects:   objs,
		Annotated: f.Clone(),
	}, nil
}

// Push appends steps to the script.
func (m *Mock) Push(steps ...MockStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Script = append(m.Script, steps...)
}

// Calls returns the frames Detect has seen.
func (m *Mock) Calls() []frame.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]frame.Packet(nil), m.calls...)
}

// Close implements Detector.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
