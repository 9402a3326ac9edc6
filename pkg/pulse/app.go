// Package pulse assembles a running PulseAI server from configuration:
// inference provider, capture source, session machine, frame pipeline and
// the web front.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/pulseai/internal/config"
	"github.com/teslashibe/pulseai/pkg/auth"
	"github.com/teslashibe/pulseai/pkg/capture"
	"github.com/teslashibe/pulseai/pkg/gateway"
	"github.com/teslashibe/pulseai/pkg/inference"
	"github.com/teslashibe/pulseai/pkg/ingest"
	"github.com/teslashibe/pulseai/pkg/pipeline"
	"github.com/teslashibe/pulseai/pkg/session"
	"github.com/teslashibe/pulseai/pkg/web"
)

// App is the PulseAI orchestrator. It owns every component and their
// lifecycle.
type App struct {
	config config.Config
	logger *slog.Logger

	provider inference.Provider
	source   capture.Source
	mailbox  *capture.Mailbox // nil unless frames come from browsers
	machine  *session.Machine
	runner   *pipeline.Runner
	server   *web.Server
}

// New validates cfg and returns an uninitialized app.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{config: cfg, logger: logger}, nil
}

// Init builds all components. Call it after New and before Run.
func (a *App) Init() error {
	provider, err := a.newProvider()
	if err != nil {
		return fmt.Errorf("inference: %w", err)
	}
	a.provider = provider

	a.machine = session.New(session.WithLogger(a.logger))

	opts := []web.Option{
		web.WithLogger(a.logger),
		web.WithDebug(a.config.Debug),
		web.WithWebDir(a.config.WebDir),
		web.WithProviderName(provider.Name()),
	}

	src, err := a.newSource()
	if err != nil {
		provider.Close()
		return fmt.Errorf("capture: %w", err)
	}
	if a.mailbox != nil {
		opts = append(opts, web.WithIngest(ingest.NewHub(a.mailbox, ingest.WithLogger(a.logger))))
	}
	a.source = capture.NewThrottle(src, a.config.CaptureInterval)

	if a.config.GoogleSignInEnabled() {
		g, err := auth.NewGoogle(auth.GoogleConfig{
			ClientID:     a.config.GoogleClientID,
			ClientSecret: a.config.GoogleClientSecret,
			RedirectURL:  a.config.GoogleRedirectURL,
			Logger:       a.logger,
		})
		if err != nil {
			a.source.Close()
			provider.Close()
			return fmt.Errorf("google sign-in: %w", err)
		}
		opts = append(opts, web.WithGoogle(g))
	}

	gw := gateway.New(provider,
		gateway.WithLogger(a.logger),
		gateway.WithModel(a.config.Model),
	)
	a.runner = pipeline.New(a.source, gw, a.machine,
		pipeline.WithTimeout(a.config.InferenceTimeout),
		pipeline.WithLogger(a.logger),
	)
	opts = append(opts, web.WithPipeline(a.runner))

	a.server = web.NewServer(":"+a.config.Port, a.machine, opts...)
	return nil
}

// newProvider selects the inference backend.
func (a *App) newProvider() (inference.Provider, error) {
	common := []inference.Option{
		inference.WithVisionModel(a.config.ModelName()),
		inference.WithTimeout(a.config.InferenceTimeout),
		inference.WithLogger(a.logger),
	}

	switch a.config.Provider {
	case config.ProviderGemini:
		opts := append(common, inference.WithAPIKey(a.config.GoogleAPIKey))
		if a.config.BaseURL != "" {
			opts = append(opts, inference.WithBaseURL(a.config.BaseURL))
		}
		return inference.NewGemini(opts...)
	case config.ProviderOpenAI:
		opts := append(common, inference.WithAPIKey(a.config.OpenAIKey))
		if a.config.BaseURL != "" {
			opts = append(opts, inference.WithBaseURL(a.config.BaseURL))
		}
		return inference.NewClient(opts...)
	case config.ProviderMock:
		return inference.NewMock(), nil
	}
	return nil, fmt.Errorf("unknown provider %q", a.config.Provider)
}

// newSource picks the frame source: a remote camera feed, a local device,
// or frames pushed by browsers over /ws/capture.
func (a *App) newSource() (capture.Source, error) {
	switch {
	case a.config.CameraURL != "":
		a.logger.Info("capture from remote feed", "url", a.config.CameraURL)
		return capture.NewRemote(a.config.CameraURL, capture.WithRemoteLogger(a.logger)), nil

	case a.config.CameraDevice >= 0:
		cfg := capture.DefaultConfig()
		if p := capture.GetPreset(a.config.CameraPreset); p != nil {
			cfg = *p
		}
		if problems := cfg.Validate(); len(problems) > 0 {
			return nil, fmt.Errorf("camera preset %q: %v", a.config.CameraPreset, problems)
		}
		a.logger.Info("capture from device", "device", a.config.CameraDevice, "preset", a.config.CameraPreset)
		dev, err := capture.OpenDevice(a.config.CameraDevice, cfg)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}

	a.logger.Info("capture from browser clients", "path", "/ws/capture")
	a.mailbox = capture.NewMailbox()
	return a.mailbox, nil
}

// Run serves HTTP and drives the pipeline until ctx is cancelled or either
// one fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		runErrs []error
	)
	record := func(name string, err error) {
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		errMu.Lock()
		runErrs = append(runErrs, fmt.Errorf("%s: %w", name, err))
		errMu.Unlock()
		cancel()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		record("web", a.server.Start(ctx))
	}()
	go func() {
		defer wg.Done()
		record("pipeline", a.runner.Run(ctx))
	}()

	a.logger.Info("pulseai running", "port", a.config.Port, "provider", a.provider.Name())
	wg.Wait()

	return errors.Join(runErrs...)
}

// Machine returns the session machine.
func (a *App) Machine() *session.Machine {
	return a.machine
}

// Shutdown releases the capture source and the provider.
func (a *App) Shutdown() {
	if a.source != nil {
		a.source.Close()
	}
	if a.provider != nil {
		a.provider.Close()
	}
	if a.runner != nil {
		a.logger.Info("pulseai stopped", "stats", a.runner.Stats())
	}
}
