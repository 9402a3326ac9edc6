// PulseAI - camera-driven interaction monitor
// Interprets webcam frames with a hosted vision model and serves the
// session state to dashboards.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/teslashibe/pulseai/internal/config"
	"github.com/teslashibe/pulseai/internal/log"
	"github.com/teslashibe/pulseai/pkg/capture"
	"github.com/teslashibe/pulseai/pkg/pulse"
)

func main() {
	cfg := parseFlags()

	log.Init(cfg.LogLevel)
	logger := log.L()

	app, err := pulse.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	if err := app.Init(); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// parseFlags reads the environment, then lets flags override it.
func parseFlags() config.Config {
	cfg := config.Default()
	cfg.LoadEnv()

	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable request logging and debug output")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP port")
	flag.StringVar(&cfg.WebDir, "web", cfg.WebDir, "Static files directory (empty disables)")
	flag.StringVar(&cfg.Provider, "provider", cfg.Provider, "Inference provider: gemini, openai, mock")
	flag.StringVar(&cfg.Model, "model", cfg.Model, "Vision model (empty uses the provider default)")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Override the provider API base URL")
	flag.DurationVar(&cfg.InferenceTimeout, "timeout", cfg.InferenceTimeout, "Per-frame inference timeout")
	flag.DurationVar(&cfg.CaptureInterval, "interval", cfg.CaptureInterval, "Minimum time between frames")
	flag.StringVar(&cfg.CameraURL, "camera-url", cfg.CameraURL, "Remote websocket frame feed")
	flag.IntVar(&cfg.CameraDevice, "camera", cfg.CameraDevice, "Local camera index, -1 for browser capture")
	flag.StringVar(&cfg.CameraPreset, "preset", cfg.CameraPreset, "Camera preset: "+strings.Join(capture.PresetNames(), ", "))
	flag.Parse()

	if cfg.Debug && cfg.LogLevel == "info" {
		cfg.LogLevel = "debug"
	}
	return cfg
}
