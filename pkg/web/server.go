// Package web serves the PulseAI HTTP API and the live state feed.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/pulseai/pkg/auth"
	"github.com/teslashibe/pulseai/pkg/hub"
	"github.com/teslashibe/pulseai/pkg/ingest"
	"github.com/teslashibe/pulseai/pkg/pipeline"
	"github.com/teslashibe/pulseai/pkg/profile"
	"github.com/teslashibe/pulseai/pkg/protocol"
	"github.com/teslashibe/pulseai/pkg/session"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 5 * time.Second

// OAuthFlow is a redirect-based sign-in such as *auth.Google.
type OAuthFlow interface {
	AuthURL() string
	Exchange(ctx context.Context, state, code string) (*profile.UserProfile, error)
}

// StatsSource reports pipeline counters.
type StatsSource interface {
	Stats() pipeline.Stats
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAuthenticator replaces the email/password authenticator.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithGoogle enables Google sign-in.
func WithGoogle(g OAuthFlow) Option {
	return func(s *Server) { s.google = g }
}

// WithIngest mounts browser capture on /ws/capture.
func WithIngest(h *ingest.Hub) Option {
	return func(s *Server) { s.ingest = h }
}

// WithPipeline exposes pipeline counters on /api/pipeline/stats.
func WithPipeline(p StatsSource) Option {
	return func(s *Server) { s.pipeline = p }
}

// WithWebDir serves static files from dir.
func WithWebDir(dir string) Option {
	return func(s *Server) { s.webDir = dir }
}

// WithDebug enables request logging.
func WithDebug(on bool) Option {
	return func(s *Server) { s.debug = on }
}

// WithProviderName is reported by /health.
func WithProviderName(name string) Option {
	return func(s *Server) { s.provider = name }
}

// Server is the HTTP front of one session machine.
type Server struct {
	app     *fiber.App
	addr    string
	machine *session.Machine
	logger  *slog.Logger

	auth     auth.Authenticator
	google   OAuthFlow
	ingest   *ingest.Hub
	pipeline StatsSource
	webDir   string
	debug    bool
	provider string

	// Dashboards receiving state snapshots and notices
	states      *hub.Hub
	unsubscribe func()
}

// NewServer creates a server listening on addr (e.g., ":8080").
func NewServer(addr string, machine *session.Machine, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		machine: machine,
		logger:  slog.Default(),
		auth:    auth.NewEmailPrefix(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.states = hub.New("state", hub.WithLogger(s.logger))
	s.logger = s.logger.With("component", "web")

	app := fiber.New(fiber.Config{
		AppName:               "PulseAI",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if s.debug {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/modes", s.handleModes)
	api.Get("/history", s.handleHistory)
	api.Get("/pipeline/stats", s.handlePipelineStats)

	api.Post("/login", s.handleLogin)
	api.Get("/auth/google", s.handleGoogleLogin)
	api.Get("/auth/google/callback", s.handleGoogleCallback)
	api.Post("/logout", s.handleLogout)

	api.Post("/modes/:mode/toggle", s.handleToggleMode)
	api.Post("/session/start", s.handleStartSession)
	api.Post("/calibration/toggle", s.handleToggleCalibration)
	api.Post("/calibration/finish", s.handleFinishCalibration)

	// WebSocket upgrade middleware
	app.Use("/ws/state", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))

	if s.ingest != nil {
		s.ingest.RegisterRoutes(app)
		s.ingest.RegisterAPIRoutes(api)
	}

	if s.webDir != "" {
		app.Static("/", s.webDir)
	}

	s.unsubscribe = machine.Subscribe(s.publishSnapshot)
	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.states.Run(ctx)

	s.logger.Info("web server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listener(ln) }()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		s.unsubscribe()
		return err
	}
}

// Shutdown stops receiving snapshots and closes the listener.
func (s *Server) Shutdown() error {
	s.unsubscribe()
	return s.app.ShutdownWithTimeout(ShutdownTimeout)
}

// publishSnapshot forwards every committed transition to dashboards.
func (s *Server) publishSnapshot(snap session.Snapshot) {
	msg, err := protocol.NewStateMessage(snap)
	if err != nil {
		s.logger.Error("encode snapshot", "error", err)
		return
	}
	s.states.BroadcastMessage(msg)
}

// notify pushes a user-visible notice to dashboards.
func (s *Server) notify(level, text string) {
	msg, err := protocol.NewNoticeMessage(level, text)
	if err != nil {
		return
	}
	s.states.BroadcastMessage(msg)
}

// errorHandler renders every error as {"error": "..."}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
