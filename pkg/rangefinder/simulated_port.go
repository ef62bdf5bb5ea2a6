package rangefinder

import (
	"math"
	"sync"
	"time"
)

// SimulatedPort is a Port that produces ranger frames without hardware.
// The distance follows a slow triangle wave between MinCM and MaxCM, and a
// stray byte is injected every NoiseEvery frames to exercise resync.
type SimulatedPort struct {
	MinCM      int
	MaxCM      int
	Period     time.Duration // time for one full near-far-near sweep
	FrameRate  int           // frames per second, TF-Luna default is 100
	NoiseEvery int           // 0 disables noise

	mu      sync.Mutex
	start   time.Time
	sent    int
	pending []byte
	timeout time.Duration
	closed  bool
}

// NewSimulatedPort returns a simulator sweeping 20–300 cm every 12 s.
func NewSimulatedPort() *SimulatedPort {
	return &SimulatedPort{
		MinCM:      20,
		MaxCM:      300,
		Period:     12 * time.Second,
		FrameRate:  100,
		NoiseEvery: 50,
		start:      time.Now(),
		timeout:    10 * time.Millisecond,
	}
}

// SimulatedOpener ignores path and options and returns a fresh simulator.
func SimulatedOpener(string, PortOptions) (Port, error) {
	return NewSimulatedPort(), nil
}

// Read returns the frames that would have arrived since the last call,
// waiting up to the read timeout when none are due.
func (s *SimulatedPort) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errClosed
	}
	s.generate()
	if len(s.pending) == 0 {
		wait := s.timeout
		s.mu.Unlock()
		time.Sleep(wait)
		s.mu.Lock()
		s.generate()
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	s.mu.Unlock()
	return n, nil
}

func (s *SimulatedPort) generate() {
	elapsed := time.Since(s.start)
	due := int(elapsed.Seconds() * float64(s.FrameRate))
	for ; s.sent < due; s.sent++ {
		if s.NoiseEvery > 0 && s.sent%s.NoiseEvery == 0 {
			s.pending = append(s.pending, 0x00)
		}
		s.pending = append(s.pending, EncodePacket(s.distanceAt(s.sent), 1200)...)
	}
}

func (s *SimulatedPort) distanceAt(frame int) int {
	if s.Period <= 0 || s.FrameRate <= 0 {
		return s.MinCM
	}
	t := float64(frame) / float64(s.FrameRate)
	phase := math.Mod(t, s.Period.Seconds()) / s.Period.Seconds()
	tri := 1 - math.Abs(2*phase-1)
	return s.MinCM + int(tri*float64(s.MaxCM-s.MinCM))
}

// Write discards commands.
func (s *SimulatedPort) Write(p []byte) (int, error) {
	return len(p), nil
}

// Close stops the simulator.
func (s *SimulatedPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SetReadTimeout implements Port.
func (s *SimulatedPort) SetReadTimeout(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = timeout
	return nil
}
