package fusion

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-rangegate/internal/log"
	"github.com/teslashibe/go-rangegate/pkg/event"
)

// ErrInvalidSettings is matched by every ValidationError.
var ErrInvalidSettings = errors.New("fusion: invalid settings")

// NoticeTTL is how long the "settings updated" notice stays up.
const NoticeTTL = 2 * time.Second

// ValidationError names the constraint a settings update violated.
type ValidationError struct {
	Field  string // "min_cm", "max_cm" or "range"
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("fusion: invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidSettings) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSettings
}

// Range is the inclusive detection window in centimeters.
type Range struct {
	MinCM int `json:"min_cm" yaml:"min_cm"`
	MaxCM int `json:"max_cm" yaml:"max_cm"`
}

// DefaultRange is used when nothing else is configured.
var DefaultRange = Range{MinCM: 50, MaxCM: 200}

// Validate checks 0 <= MinCM < MaxCM.
func (r Range) Validate() error {
	if r.MinCM < 0 {
		return &ValidationError{Field: "min_cm", Reason: "must not be negative"}
	}
	if r.MaxCM < 0 {
		return &ValidationError{Field: "max_cm", Reason: "must not be negative"}
	}
	if r.MinCM >= r.MaxCM {
		return &ValidationError{Field: "range", Reason: "min_cm must be less than max_cm"}
	}
	return nil
}

// Contains reports whether d is inside the window, bounds included.
func (r Range) Contains(d int) bool {
	return r.MinCM <= d && d <= r.MaxCM
}

// Classify places a distance relative to the window.
func (r Range) Classify(d int, hasReading bool) Zone {
	switch {
	case !hasReading:
		return ZoneNone
	case d < r.MinCM:
		return ZoneNear
	case d > r.MaxCM:
		return ZoneFar
	default:
		return ZoneInRange
	}
}

// String formats the window the way the dashboard labels it.
func (r Range) String() string {
	return fmt.Sprintf("%d-%d cm", r.MinCM, r.MaxCM)
}

// Zone is where the latest distance sits relative to the window.
type Zone int

const (
	// ZoneNone means no distance has been read yet.
	ZoneNone Zone = iota
	ZoneNear
	ZoneInRange
	ZoneFar
)

// String implements fmt.Stringer.
func (z Zone) String() string {
	switch z {
	case ZoneNear:
		return "near"
	case ZoneInRange:
		return "in_range"
	case ZoneFar:
		return "far"
	default:
		return "none"
	}
}

// Indicator is the short human status for the zone.
func (z Zone) Indicator() string {
	switch z {
	case ZoneNear:
		return "too close!"
	case ZoneInRange:
		return "optimal distance"
	case ZoneFar:
		return "too far"
	default:
		return "waiting for ranger"
	}
}

// Settings holds the active detection window. Apply may be called from any
// goroutine; the scheduler reads Range once per tick.
type Settings struct {
	mu   sync.RWMutex
	r    Range
	sink event.Sink
	log  *slog.Logger
}

// NewSettings validates r and returns Settings starting from it.
func NewSettings(r Range, sink event.Sink) (*Settings, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = event.Discard
	}
	return &Settings{r: r, sink: sink, log: log.For("settings")}, nil
}

// Range returns the active window.
func (s *Settings) Range() Range {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.r
}

// Apply replaces the window. On failure the previous window is kept and a
// *ValidationError is returned.
func (s *Settings) Apply(minCM, maxCM int) error {
	next := Range{MinCM: minCM, MaxCM: maxCM}
	if err := next.Validate(); err != nil {
		s.log.Warn("settings rejected", "min_cm", minCM, "max_cm", maxCM, "err", err)
		return err
	}

	s.mu.Lock()
	s.r = next
	s.mu.Unlock()

	s.log.Info("settings updated", "range", next.String())
	s.sink.Notice(event.Notice{Text: "settings updated", TTL: NoticeTTL})
	return nil
}

// ApplyText parses form input and applies it.
func (s *Settings) ApplyText(minCM, maxCM string) error {
	lo, err := parseCM("min_cm", minCM)
	if err != nil {
		return err
	}
	hi, err := parseCM("max_cm", maxCM)
	if err != nil {
		return err
	}
	return s.Apply(lo, hi)
}

func parseCM(field, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, &ValidationError{Field: field, Reason: "must be a number"}
	}
	return n, nil
}
