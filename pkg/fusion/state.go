// Package fusion joins the ranger and camera streams and decides, tick by
// tick, whether the detector runs.
package fusion

import (
	"sync"

	"github.com/teslashibe/go-rangegate/pkg/frame"
	"github.com/teslashibe/go-rangegate/pkg/rangefinder"
)

// SharedState holds the latest frame and the latest distance.
//
// Producers copy outside the lock and swap under it; Snapshot reads both
// fields under a single acquisition. Each field is individually the latest
// published value, but the two were not necessarily captured at the same
// instant. The lock is never held across a blocking call.
type SharedState struct {
	mu          sync.Mutex
	frame       *frame.Packet
	distance    int
	hasDistance bool

	frames    uint64
	distances uint64
}

// NewSharedState returns an empty state.
func NewSharedState() *SharedState {
	return &SharedState{}
}

// PublishFrame stores a private copy of f, replacing any unconsumed frame.
func (s *SharedState) PublishFrame(f frame.Packet) {
	c := f.Clone()

	s.mu.Lock()
	s.frame = &c
	s.frames++
	s.mu.Unlock()
}

// PublishDistance stores r as the latest distance.
func (s *SharedState) PublishDistance(r rangefinder.Reading) {
	s.mu.Lock()
	s.distance = r.DistanceCM
	s.hasDistance = true
	s.distances++
	s.mu.Unlock()
}

// Snapshot returns the latest frame (nil before the first publish), the
// latest distance, and whether any distance has been published.
//
// The returned frame is shared with later snapshots and must be treated as
// read-only.
func (s *SharedState) Snapshot() (*frame.Packet, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.distance, s.hasDistance
}

// Counts returns how many frames and distances have been published.
func (s *SharedState) Counts() (frames, distances uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.distances
}

// Reset empties the state.
func (s *SharedState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = nil
	s.distance = 0
	s.hasDistance = false
	s.frames = 0
	s.distances = 0
}
