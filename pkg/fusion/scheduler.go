package fusion

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-rangegate/internal/log"
	"github.com/teslashibe/go-rangegate/pkg/alert"
	"github.com/teslashibe/go-rangegate/pkg/detection"
	"github.com/teslashibe/go-rangegate/pkg/event"
	"github.com/teslashibe/go-rangegate/pkg/frame"
)

// DefaultTickInterval gives roughly 30 ticks per second.
const DefaultTickInterval = 33 * time.Millisecond

// TickResult describes one tick. It is returned by Step and not retained.
type TickResult struct {
	Distance   int
	HasReading bool
	Zone       Zone
	Range      Range
	GateOpen   bool
	Labels     []string
	Annotated  *frame.Packet // detector output, nil unless labels were found
	Err        error         // detector failure, if any
}

// Scheduler runs the fusion tick: snapshot, gate, detect, alert, emit.
// Step and Run must not be called concurrently.
type Scheduler struct {
	state    *SharedState
	settings *Settings
	detector detection.Detector
	alert    *alert.Controller
	renderer Renderer
	sink     event.Sink
	period   time.Duration
	log      *slog.Logger

	ticks    atomic.Uint64
	overruns atomic.Uint64
}

// Deps are the collaborators a Scheduler drives.
type Deps struct {
	State    *SharedState
	Settings *Settings
	Detector detection.Detector
	Alert    *alert.Controller
	Renderer Renderer
	Sink     event.Sink
}

// NewScheduler creates a scheduler ticking every period. A non-positive
// period selects DefaultTickInterval.
func NewScheduler(period time.Duration, deps Deps) *Scheduler {
	if period <= 0 {
		period = DefaultTickInterval
	}
	sink := deps.Sink
	if sink == nil {
		sink = event.Discard
	}
	return &Scheduler{
		state:    deps.State,
		settings: deps.Settings,
		detector: deps.Detector,
		alert:    deps.Alert,
		renderer: deps.Renderer,
		sink:     sink,
		period:   period,
		log:      log.For("scheduler"),
	}
}

// Run ticks until ctx is cancelled. A tick that finishes early waits for the
// rest of the period; one that overruns is followed immediately by the
// next. Missed ticks are never queued.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", "period", s.period)
	defer s.log.Info("scheduler stopped", "ticks", s.ticks.Load(), "overruns", s.overruns.Load())

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		start := time.Now()
		s.Step()

		wait := nextDelay(start, time.Now(), s.period)
		if wait == 0 {
			s.overruns.Add(1)
			continue
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// nextDelay returns how long to wait before the tick after one that ran from
// start to end.
func nextDelay(start, end time.Time, period time.Duration) time.Duration {
	elapsed := end.Sub(start)
	if elapsed >= period {
		return 0
	}
	return period - elapsed
}

// Stats returns the number of ticks run and how many overran the period.
func (s *Scheduler) Stats() (ticks, overruns uint64) {
	return s.ticks.Load(), s.overruns.Load()
}

// Step runs one tick synchronously.
func (s *Scheduler) Step() TickResult {
	s.ticks.Add(1)

	snap, distance, hasReading := s.state.Snapshot()
	r := s.settings.Range()
	zone := r.Classify(distance, hasReading)

	res := TickResult{
		Distance:   distance,
		HasReading: hasReading,
		Zone:       zone,
		Range:      r,
		GateOpen:   zone == ZoneInRange,
	}
	defer func() { s.emitStatus(res) }()

	if snap != nil {
		s.sink.Render(event.Render{
			Kind:    event.LiveFrame,
			Image:   s.renderer.DistanceOverlay(*snap, distance, zone),
			Caption: DistanceCaption(distance, zone),
		})
	}

	if !res.GateOpen {
		s.alert.Clear()
		s.sink.Render(event.Render{
			Kind:    event.FilteredFrame,
			Image:   s.renderer.OutOfRange(distance, zone, r),
			Caption: CaptionWaiting + ": " + OutOfRangeReason(distance, zone),
		})
		return res
	}

	if snap == nil {
		s.alert.Clear()
		return res
	}

	out, err := s.detector.Detect(*snap)
	if err != nil {
		var de *detection.Error
		if !errors.As(err, &de) {
			err = &detection.Error{Backend: "detector", Err: err}
		}
		s.log.Warn("detection failed", "err", err)
		s.alert.Clear()
		s.sink.Render(event.Render{
			Kind:    event.FilteredFrame,
			Image:   *snap,
			Caption: CaptionDetectError,
		})
		res.Err = err
		return res
	}

	if out.Empty() {
		s.alert.Clear()
		s.sink.Render(event.Render{
			Kind:    event.FilteredFrame,
			Image:   s.renderer.NoDetection(*snap),
			Caption: CaptionNoDetection,
		})
		return res
	}

	msg := AlertMessage(out.Labels)
	s.alert.Activate(msg)

	annotated := out.Annotated
	if annotated.Empty() {
		annotated = *snap
	}
	s.sink.Render(event.Render{
		Kind:    event.FilteredFrame,
		Image:   annotated,
		Caption: msg,
	})

	res.Labels = out.Labels
	res.Annotated = &annotated
	return res
}

func (s *Scheduler) emitStatus(res TickResult) {
	s.sink.Status(event.Status{
		DistanceCM: res.Distance,
		HasReading: res.HasReading,
		Zone:       res.Zone.String(),
		Indicator:  res.Zone.Indicator(),
		MinCM:      res.Range.MinCM,
		MaxCM:      res.Range.MaxCM,
		GateOpen:   res.GateOpen,
		Labels:     res.Labels,
	})
}
