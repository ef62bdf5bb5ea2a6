package web

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-rangegate/pkg/event"
	"github.com/teslashibe/go-rangegate/pkg/fusion"
	"github.com/teslashibe/go-rangegate/pkg/hub"
	"github.com/teslashibe/go-rangegate/pkg/pipeline"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Pipeline pipeline.Status `json:"pipeline"`
	Reading  event.Status    `json:"reading"`
	Alert    event.Alert     `json:"alert"`
	Range    fusion.Range    `json:"range"`
	Notice   *noticeJSON     `json:"notice,omitempty"`
	Clients  map[string]int  `json:"clients"`
	Streams  map[string]any  `json:"streams"`
}

// handleStatus returns the pipeline state and the latest tick.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.RLock()
	resp := StatusResponse{
		Reading: s.lastStatus,
		Alert:   s.lastAlert,
	}
	s.mu.RUnlock()

	resp.Pipeline = s.pipeline.Status()
	resp.Range = s.settings.Range()
	resp.Notice = s.activeNotice()
	resp.Clients = map[string]int{
		"live":     s.liveHub.ClientCount(),
		"filtered": s.filteredHub.ClientCount(),
		"events":   s.eventsHub.ClientCount(),
	}
	le, ls := s.live.stats()
	fe, fs := s.filtered.stats()
	resp.Streams = map[string]any{
		"live":     fiber.Map{"encoded": le, "skipped": ls},
		"filtered": fiber.Map{"encoded": fe, "skipped": fs},
	}
	return c.JSON(resp)
}

// handleGetSettings returns the detection window.
func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.settings.Range())
}

// handlePostSettings applies a new detection window from JSON or form
// input. Validation failures return 400 naming the violated constraint.
func (s *Server) handlePostSettings(c *fiber.Ctx) error {
	minCM, maxCM, err := settingsInput(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := s.settings.ApplyText(minCM, maxCM); err != nil {
		var ve *fusion.ValidationError
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  ve.Error(),
				"field":  ve.Field,
				"reason": ve.Reason,
			})
		}
		return err
	}
	return c.JSON(s.settings.Range())
}

func settingsInput(c *fiber.Ctx) (string, string, error) {
	if !c.Is("json") {
		return c.FormValue("min_cm"), c.FormValue("max_cm"), nil
	}

	var body map[string]any
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return "", "", errors.New("body must be a JSON object")
	}
	return jsonText(body["min_cm"]), jsonText(body["max_cm"]), nil
}

func jsonText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// handleStart starts the pipeline.
func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.pipeline.Start(s.context()); err != nil {
		s.log.Error("pipeline start failed", "err", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.pipeline.Status())
}

// handleStop stops the pipeline. A join timeout is reported but the
// pipeline is stopped either way.
func (s *Server) handleStop(c *fiber.Ctx) error {
	err := s.pipeline.Stop()
	if err != nil && !errors.Is(err, pipeline.ErrJoinTimeout) {
		return err
	}
	resp := fiber.Map{"pipeline": s.pipeline.Status()}
	if err != nil {
		resp["warning"] = err.Error()
	}
	return c.JSON(resp)
}

// handleEventsWS sends the current alert and status, then streams events.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.eventsHub, c)
	if client == nil {
		c.Close()
		return
	}

	s.mu.RLock()
	st, al := s.lastStatus, s.lastAlert
	s.mu.RUnlock()
	// Hello messages go through the hub so the write pump stays the only
	// writer, and only this client receives them.
	for _, env := range []envelope{{Type: "status", Data: st}, {Type: "alert", Data: al}} {
		if err := client.SendJSON(env); err != nil {
			s.log.Warn("encode hello failed", "type", env.Type, "err", err)
		}
	}

	client.Run()
}
