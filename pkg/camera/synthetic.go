package camera

import (
	"sync"
	"time"

	"github.com/teslashibe/go-rangegate/pkg/frame"
)

// SyntheticSource paces BGR test frames at the configured frame rate: a
// dark grey background with a bright block sliding left to right.
type SyntheticSource struct {
	cfg Config

	mu     sync.Mutex
	next   time.Time
	n      int
	closed bool
}

// NewSyntheticSource returns a source shaped like cfg.
func NewSyntheticSource(cfg Config) *SyntheticSource {
	if cfg.Framerate <= 0 {
		cfg.Framerate = DefaultConfig().Framerate
	}
	return &SyntheticSource{cfg: cfg, next: time.Now()}
}

// SyntheticOpener is an Opener for SyntheticSource.
func SyntheticOpener(cfg Config) (Source, error) {
	return NewSyntheticSource(cfg), nil
}

// Read implements Source.
func (s *SyntheticSource) Read() (frame.Packet, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return frame.Packet{}, ErrClosed
	}
	wait := time.Until(s.next)
	s.next = s.next.Add(time.Second / time.Duration(s.cfg.Framerate))
	if wait < 0 {
		// fell behind: restart pacing from now instead of bursting
		s.next = time.Now().Add(time.Second / time.Duration(s.cfg.Framerate))
		wait = 0
	}
	n := s.n
	s.n++
	s.mu.Unlock()

	time.Sleep(wait)
	return s.render(n), nil
}

func (s *SyntheticSource) render(n int) frame.Packet {
	f := frame.New(s.cfg.Width, s.cfg.Height)
	for i := range f.Data {
		f.Data[i] = 0x20
	}

	size := s.cfg.Height / 4
	if size <= 0 {
		return f
	}
	span := s.cfg.Width - size
	if span <= 0 {
		span = 1
	}
	x0 := (n * 8) % span
	y0 := (s.cfg.Height - size) / 2

	for y := y0; y < y0+size; y++ {
		row := y * s.cfg.Width * frame.BytesPerPixel
		for x := x0; x < x0+size; x++ {
			i := row + x*frame.BytesPerPixel
			f.Data[i] = 0x30   // B
			f.Data[i+1] = 0xC0 // G
			f.Data[i+2] = 0xF0 // R
		}
	}
	return f
}

// Close implements Source.
func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
