// Package web serves the local dashboard: REST endpoints for status,
// settings and pipeline control, and websocket streams for the live and
// filtered views and for alert/status events.
package web

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-rangegate/internal/log"
	"github.com/teslashibe/go-rangegate/pkg/event"
	"github.com/teslashibe/go-rangegate/pkg/frame"
	"github.com/teslashibe/go-rangegate/pkg/fusion"
	"github.com/teslashibe/go-rangegate/pkg/hub"
	"github.com/teslashibe/go-rangegate/pkg/pipeline"
)

//go:embed static
var staticFS embed.FS

// DefaultListen binds the dashboard to loopback only.
const DefaultListen = "127.0.0.1:8080"

// Controller starts and stops the pipeline.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Status() pipeline.Status
}

// SettingsStore is the detection window as the dashboard edits it.
type SettingsStore interface {
	Range() fusion.Range
	ApplyText(minCM, maxCM string) error
}

// Encoder compresses a frame for streaming.
type Encoder func(frame.Packet) ([]byte, error)

// Config holds server settings.
type Config struct {
	Listen  string
	Encoder Encoder // nil disables the video streams
}

// Server is the web dashboard server. It also implements event.Sink so it
// can be plugged straight into the scheduler and the alert controller.
type Server struct {
	app      *fiber.App
	listen   string
	pipeline Controller
	settings SettingsStore
	log      *slog.Logger

	liveHub     *hub.Hub
	filteredHub *hub.Hub
	eventsHub   *hub.Hub

	live     *streamer
	filtered *streamer

	mu         sync.RWMutex
	lastStatus event.Status
	lastAlert  event.Alert
	notice     *event.Notice
	noticeAt   time.Time

	baseMu  sync.Mutex
	baseCtx context.Context
}

var _ event.Sink = (*Server)(nil)

// NewServer creates a new web dashboard server
func NewServer(cfg Config, ctrl Controller, settings SettingsStore) *Server {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}

	s := &Server{
		listen:      cfg.Listen,
		pipeline:    ctrl,
		settings:    settings,
		log:         log.For("web"),
		liveHub:     hub.New("live"),
		filteredHub: hub.New("filtered"),
		eventsHub:   hub.New("events"),
		baseCtx:     context.Background(),
	}
	s.live = newStreamer(s.liveHub, cfg.Encoder)
	s.filtered = newStreamer(s.filteredHub, cfg.Encoder)

	app := fiber.New(fiber.Config{
		AppName:               "rangegate",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/settings", s.handleGetSettings)
	api.Post("/settings", s.handlePostSettings)
	api.Post("/pipeline/start", s.handleStart)
	api.Post("/pipeline/stop", s.handleStop)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/live", websocket.New(func(c *websocket.Conn) { hub.Serve(s.liveHub, c) }))
	app.Get("/ws/filtered", websocket.New(func(c *websocket.Conn) { hub.Serve(s.filteredHub, c) }))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	app.Use("/", filesystem.New(filesystem.Config{
		Root:       http.FS(staticFS),
		PathPrefix: "static",
		Index:      "index.html",
	}))

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down within five seconds.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.baseMu.Lock()
	s.baseCtx = ctx
	s.baseMu.Unlock()

	for _, h := range []*hub.Hub{s.liveHub, s.filteredHub, s.eventsHub} {
		go h.Run(ctx)
	}
	go s.live.run(ctx)
	go s.filtered.run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", "addr", ln.Addr().String())
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (s *Server) context() context.Context {
	s.baseMu.Lock()
	defer s.baseMu.Unlock()
	return s.baseCtx
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
