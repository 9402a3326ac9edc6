package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/pulseai/pkg/auth"
	"github.com/teslashibe/pulseai/pkg/hub"
	"github.com/teslashibe/pulseai/pkg/pipeline"
	"github.com/teslashibe/pulseai/pkg/profile"
	"github.com/teslashibe/pulseai/pkg/protocol"
	"github.com/teslashibe/pulseai/pkg/session"
)

const noticeNotAvailable = "That action is not available right now."

// handleHealth reports liveness.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "ok",
		"provider":    s.provider,
		"dashboards":  s.states.ClientCount(),
		"googleLogin": s.google != nil,
	})
}

// handleState returns the current snapshot
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.machine.Snapshot())
}

// handleModes returns the mode catalog with the current selection
func (s *Server) handleModes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"modes":    profile.Modes(),
		"selected": s.machine.Snapshot().SelectedModes,
	})
}

// handleHistory returns the bound user's interaction history
func (s *Server) handleHistory(c *fiber.Ctx) error {
	return c.JSON(s.machine.Snapshot().History())
}

func (s *Server) handlePipelineStats(c *fiber.Ctx) error {
	if s.pipeline == nil {
		return c.JSON(pipeline.Stats{})
	}
	return c.JSON(s.pipeline.Stats())
}

// handleLogin binds the operator on valid credentials
func (s *Server) handleLogin(c *fiber.Ctx) error {
	var creds auth.Credentials
	if err := c.BodyParser(&creds); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	p, err := s.auth.Authenticate(c.UserContext(), creds)
	if err != nil {
		status := fiber.StatusUnauthorized
		if errors.Is(err, auth.ErrInvalidEmail) {
			status = fiber.StatusUnprocessableEntity
		}
		return fiber.NewError(status, auth.Notice(err))
	}
	return s.bind(c, p)
}

func (s *Server) bind(c *fiber.Ctx, p *profile.UserProfile) error {
	if !s.machine.Login(p) {
		return fiber.NewError(fiber.StatusConflict, "already signed in")
	}
	return c.JSON(s.machine.Snapshot())
}

// handleGoogleLogin redirects to the Google consent screen
func (s *Server) handleGoogleLogin(c *fiber.Ctx) error {
	if s.google == nil {
		return fiber.NewError(fiber.StatusNotFound, "google sign-in is not configured")
	}
	return c.Redirect(s.google.AuthURL(), fiber.StatusFound)
}

// handleGoogleCallback completes Google sign-in and returns to the app
func (s *Server) handleGoogleCallback(c *fiber.Ctx) error {
	if s.google == nil {
		return fiber.NewError(fiber.StatusNotFound, "google sign-in is not configured")
	}
	if reason := c.Query("error"); reason != "" {
		return fiber.NewError(fiber.StatusUnauthorized, "google sign-in was cancelled: "+reason)
	}

	p, err := s.google.Exchange(c.UserContext(), c.Query("state"), c.Query("code"))
	if err != nil {
		s.logger.Warn("google sign-in failed", "error", err)
		return fiber.NewError(fiber.StatusUnauthorized, auth.Notice(err))
	}
	if !s.machine.Login(p) {
		return fiber.NewError(fiber.StatusConflict, "already signed in")
	}
	return c.Redirect("/", fiber.StatusFound)
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	s.machine.Logout()
	return c.JSON(s.machine.Snapshot())
}

// handleToggleMode flips one mode in the selection
func (s *Server) handleToggleMode(c *fiber.Ctx) error {
	mode := profile.Mode(c.Params("mode"))
	if _, ok := profile.LookupMode(mode); !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown mode "+string(mode))
	}
	if !s.machine.ToggleMode(mode) {
		return fiber.NewError(fiber.StatusConflict, noticeNotAvailable)
	}
	return c.JSON(s.machine.Snapshot())
}

// handleStartSession enters calibration. An empty selection is a
// validation failure and is also pushed to dashboards as a notice.
func (s *Server) handleStartSession(c *fiber.Ctx) error {
	err := s.machine.StartSession()
	switch {
	case err == nil:
		return c.JSON(s.machine.Snapshot())
	case errors.Is(err, session.ErrNoModesSelected):
		text := session.Notice(err)
		s.notify("warn", text)
		return fiber.NewError(fiber.StatusUnprocessableEntity, text)
	case errors.Is(err, session.ErrWrongPhase):
		return fiber.NewError(fiber.StatusConflict, session.Notice(err))
	}
	return err
}

func (s *Server) handleToggleCalibration(c *fiber.Ctx) error {
	if !s.machine.ToggleCalibration() {
		return fiber.NewError(fiber.StatusConflict, noticeNotAvailable)
	}
	return c.JSON(s.machine.Snapshot())
}

func (s *Server) handleFinishCalibration(c *fiber.Ctx) error {
	if !s.machine.FinishCalibration() {
		return fiber.NewError(fiber.StatusConflict, noticeNotAvailable)
	}
	return c.JSON(s.machine.Snapshot())
}

// handleStateWS registers a dashboard and sends it the current snapshot
func (s *Server) handleStateWS(conn *websocket.Conn) {
	client := hub.NewClient(s.states, conn)
	if client == nil {
		return
	}

	if msg, err := protocol.NewStateMessage(s.machine.Snapshot()); err == nil {
		if data, err := msg.Bytes(); err == nil {
			client.Send(data)
		}
	}

	client.Run()
}
