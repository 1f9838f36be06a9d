package web

import (
	"bytes"
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-automed/pkg/camera"
	"github.com/teslashibe/go-automed/pkg/display"
	"github.com/teslashibe/go-automed/pkg/hub"
	"github.com/teslashibe/go-automed/pkg/scanner"
	"github.com/teslashibe/go-automed/pkg/shell"
)

// pageData feeds the screen templates.
type pageData struct {
	Title       string
	Screen      shell.Screen
	State       scanner.Snapshot
	Rows        []display.Row
	Placeholder string
	Running     bool
	Active      bool
	Loading     bool
}

// handleIndex renders the current screen. ?screen=scanner deep-links to the scanner.
func (s *Server) handleIndex(c *fiber.Ctx) error {
	// A deep link can open the scanner. Leaving it is a POST so a page
	// load never stops a scan.
	if shell.ParseScreen(c.Query("screen")) == shell.Scanner {
		s.shell.Navigate(string(shell.Scanner))
	}

	screen := s.shell.Current()
	snap := s.session.Snapshot()
	data := pageData{
		Title:       "AutoMed",
		Screen:      screen,
		State:       snap,
		Rows:        display.Rows(snap.Predictions),
		Placeholder: display.Placeholder,
		Running:     snap.Running(),
		Active:      snap.State == scanner.StateActive,
		Loading:     snap.State == scanner.StateModelLoading,
	}
	if screen == shell.Scanner {
		data.Title = "AutoMed Computer Vision Scanner"
	}

	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, string(screen), data); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

// handleNavigate switches screens (Start Scanning / Back to Home).
func (s *Server) handleNavigate(c *fiber.Ctx) error {
	s.shell.Navigate(c.Params("screen"))
	return s.respond(c, fiber.StatusOK)
}

// handleStart begins a scan in the background (Start Camera Scan).
func (s *Server) handleStart(c *fiber.Ctx) error {
	if s.shell.Current() != shell.Scanner {
		s.shell.Navigate(string(shell.Scanner))
	}

	if s.session.Snapshot().Running() {
		if wantsJSON(c) {
			return fiber.NewError(fiber.StatusConflict, scanner.ErrAlreadyRunning.Error())
		}
		return c.Redirect("/", fiber.StatusSeeOther)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StartTimeout)
		defer cancel()

		err := s.session.Start(ctx)
		switch {
		case err == nil, errors.Is(err, scanner.ErrAborted), errors.Is(err, scanner.ErrAlreadyRunning):
		default:
			s.logger.Warn("scan start failed", "error", err)
		}
	}()

	return s.respond(c, fiber.StatusAccepted)
}

// handleStop ends the scan (Stop Camera).
func (s *Server) handleStop(c *fiber.Ctx) error {
	s.session.Stop()
	return s.respond(c, fiber.StatusOK)
}

// handleState returns the screen and session state.
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.view(s.session.Snapshot()))
}

// handlePredictions returns the formatted prediction rows.
func (s *Server) handlePredictions(c *fiber.Ctx) error {
	v := s.view(s.session.Snapshot())
	return c.JSON(fiber.Map{
		"predictions": v.Predictions,
		"placeholder": v.Placeholder,
	})
}

// handleFrame returns the latest camera frame as JPEG.
func (s *Server) handleFrame(c *fiber.Ctx) error {
	frame, err := s.session.FrameJPEG()
	if errors.Is(err, camera.ErrNoFrame) {
		return fiber.NewError(fiber.StatusNotFound, "no camera frame")
	}
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("jpg")
	return c.Send(frame)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"state":  s.session.Snapshot().State,
	})
}

// handlePredictionsWS streams StateView snapshots.
func (s *Server) handlePredictionsWS(c *websocket.Conn) {
	if client := hub.NewClient(s.predictionsHub, c); client != nil {
		client.Run()
	}
}

// handleCameraWS streams JPEG preview frames.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	if client := hub.NewClient(s.cameraHub, c); client != nil {
		client.Run()
	}
}

// respond sends the state to JSON clients and redirects browsers home.
func (s *Server) respond(c *fiber.Ctx, status int) error {
	if wantsJSON(c) {
		return c.Status(status).JSON(s.view(s.session.Snapshot()))
	}
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func wantsJSON(c *fiber.Ctx) bool {
	return c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON
}
