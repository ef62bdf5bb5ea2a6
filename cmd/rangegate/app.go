package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-rangegate/internal/config"
	"github.com/teslashibe/go-rangegate/internal/log"
	"github.com/teslashibe/go-rangegate/pkg/alert"
	"github.com/teslashibe/go-rangegate/pkg/camera"
	"github.com/teslashibe/go-rangegate/pkg/detection"
	"github.com/teslashibe/go-rangegate/pkg/event"
	"github.com/teslashibe/go-rangegate/pkg/frame"
	"github.com/teslashibe/go-rangegate/pkg/fusion"
	"github.com/teslashibe/go-rangegate/pkg/pipeline"
	"github.com/teslashibe/go-rangegate/pkg/rangefinder"
	"github.com/teslashibe/go-rangegate/pkg/vision"
	"github.com/teslashibe/go-rangegate/pkg/web"
)

// app wires the hardware, the fusion loop and the dashboard together.
type app struct {
	cfg       *config.Config
	autostart bool
	log       *slog.Logger

	detector detection.Detector
	pipeline *pipeline.Pipeline
	server   *web.Server

	shutdown sync.Once
}

func newApp(cfg *config.Config, opts options) (*app, error) {
	a := &app{
		cfg:       cfg,
		autostart: opts.autostart,
		log:       log.For("main"),
	}

	openPort := rangefinder.Opener(rangefinder.OpenSerial)
	openCamera := camera.Opener(vision.OpenCapture)
	if opts.dev {
		a.log.Info("dev mode: simulated ranger, synthetic camera, scripted detector")
		openPort = rangefinder.SimulatedOpener
		openCamera = camera.SyntheticOpener
		a.detector = detection.NewMock(detection.MockStep{Labels: []string{"person"}})
	} else {
		yolo, err := vision.NewYOLO(vision.YOLOConfig{
			ModelPath:        cfg.Detector.ModelPath,
			ConfidenceThresh: cfg.Detector.Confidence,
			NMSThresh:        cfg.Detector.NMS,
			InputWidth:       cfg.Detector.InputSize,
			InputHeight:      cfg.Detector.InputSize,
			Classes:          cfg.Detector.Classes,
		})
		if err != nil {
			return nil, fmt.Errorf("load detector: %w", err)
		}
		a.detector = yolo
	}

	state := fusion.NewSharedState()

	quality := cfg.Web.JPEGQuality
	var ctrl lazyController
	settingsSink := &lazySink{}
	settings, err := fusion.NewSettings(cfg.Range(), settingsSink)
	if err != nil {
		a.detector.Close()
		return nil, err
	}

	a.server = web.NewServer(web.Config{
		Listen: cfg.Web.Listen,
		Encoder: func(p frame.Packet) ([]byte, error) {
			return vision.EncodeJPEG(p, quality)
		},
	}, &ctrl, settings)

	sink := event.Multi(a.server, &zoneLog{log: log.For("fusion")})
	settingsSink.set(sink)

	alerts := alert.New(sink, alert.WithInterval(cfg.Fusion.FlashInterval.D()))
	sched := fusion.NewScheduler(cfg.Fusion.TickInterval.D(), fusion.Deps{
		State:    state,
		Settings: settings,
		Detector: a.detector,
		Alert:    alerts,
		Renderer: vision.NewRenderer(cfg.Camera.Width, cfg.Camera.Height),
		Sink:     sink,
	})

	a.pipeline = pipeline.New(cfg.Pipeline(), pipeline.Deps{
		Ranger:    rangefinder.NewDriver(cfg.Ranger(), openPort),
		Camera:    camera.NewAcquisition(cfg.Camera, openCamera, state),
		Scheduler: sched,
		State:     state,
		Alert:     alerts,
	})
	ctrl.set(a.pipeline)

	return a, nil
}

// Run serves the dashboard until ctx is cancelled. With autostart the
// pipeline is started first; a ranger or camera that cannot be opened is
// fatal.
func (a *app) Run(ctx context.Context) error {
	if a.autostart {
		if err := a.pipeline.Start(ctx); err != nil {
			return fmt.Errorf("start pipeline: %w", err)
		}
	} else {
		a.log.Info("pipeline idle, start it from the dashboard", "listen", a.cfg.Web.Listen)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Shutdown stops the pipeline and releases the detector. Safe to call more
// than once.
func (a *app) Shutdown() {
	a.shutdown.Do(func() {
		if err := a.pipeline.Stop(); err != nil {
			a.log.Warn("pipeline stop", "err", err)
		}
		if err := a.detector.Close(); err != nil {
			a.log.Warn("detector close", "err", err)
		}
		a.log.Info("shutdown complete")
	})
}

// lazyController lets the web server be built before the pipeline, which
// needs the server as its event sink.
type lazyController struct {
	mu sync.RWMutex
	p  *pipeline.Pipeline
}

func (c *lazyController) set(p *pipeline.Pipeline) {
	c.mu.Lock()
	c.p = p
	c.mu.Unlock()
}

func (c *lazyController) get() *pipeline.Pipeline {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.p
}

func (c *lazyController) Start(ctx context.Context) error { return c.get().Start(ctx) }
func (c *lazyController) Stop() error                     { return c.get().Stop() }
func (c *lazyController) Status() pipeline.Status         { return c.get().Status() }

// lazySink forwards to a sink installed after construction.
type lazySink struct {
	mu   sync.RWMutex
	sink event.Sink
}

func (l *lazySink) set(s event.Sink) {
	l.mu.Lock()
	l.sink = s
	l.mu.Unlock()
}

func (l *lazySink) target() event.Sink {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.sink == nil {
		return event.Discard
	}
	return l.sink
}

func (l *lazySink) Render(e event.Render) { l.target().Render(e) }
func (l *lazySink) Alert(e event.Alert)   { l.target().Alert(e) }
func (l *lazySink) Status(e event.Status) { l.target().Status(e) }
func (l *lazySink) Notice(e event.Notice) { l.target().Notice(e) }

// zoneLog logs zone transitions and notices. Alerts are logged by the
// alert controller itself.
type zoneLog struct {
	log *slog.Logger

	mu   sync.Mutex
	zone string
}

func (*zoneLog) Render(event.Render) {}
func (*zoneLog) Alert(event.Alert)   {}

func (l *zoneLog) Status(e event.Status) {
	l.mu.Lock()
	changed := e.Zone != l.zone
	l.zone = e.Zone
	l.mu.Unlock()
	if changed {
		l.log.Debug("zone changed", "zone", e.Zone, "distance_cm", e.DistanceCM, "gate_open", e.GateOpen)
	}
}

func (l *zoneLog) Notice(e event.Notice) {
	l.log.Info("notice", "text", e.Text)
}
