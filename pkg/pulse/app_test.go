package pulse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/pulseai/internal/config"
	"github.com/teslashibe/pulseai/internal/log"
	"github.com/teslashibe/pulseai/pkg/capture"
	"github.com/teslashibe/pulseai/pkg/session"
)

func mockConfig() config.Config {
	cfg := config.Default()
	cfg.Provider = config.ProviderMock
	cfg.Port = "0"
	cfg.WebDir = ""
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = config.ProviderGemini
	if _, err := New(cfg, log.Discard()); err == nil {
		t.Error("expected error without GOOGLE_API_KEY")
	}
}

func TestInitBrowserCapture(t *testing.T) {
	app, err := New(mockConfig(), log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := app.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer app.Shutdown()

	if app.mailbox == nil {
		t.Error("browser capture should use a mailbox")
	}
	if app.provider.Name() != "mock" {
		t.Errorf("provider = %s", app.provider.Name())
	}
	if app.Machine().Snapshot().Phase != session.PhaseUnauthenticated {
		t.Error("machine should start unauthenticated")
	}
}

func TestInitRemoteCapture(t *testing.T) {
	cfg := mockConfig()
	cfg.CameraURL = "ws://127.0.0.1:1/frames"

	app, _ := New(cfg, log.Discard())
	if err := app.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer app.Shutdown()

	if app.mailbox != nil {
		t.Error("remote capture should not create a mailbox")
	}
}

func TestInitDeviceWithoutSupport(t *testing.T) {
	if capture.DeviceSupported {
		t.Skip("built with gocv")
	}
	cfg := mockConfig()
	cfg.CameraDevice = 0

	app, _ := New(cfg, log.Discard())
	if err := app.Init(); !errors.Is(err, capture.ErrDeviceUnsupported) {
		t.Errorf("Init err = %v, want ErrDeviceUnsupported", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	app, _ := New(mockConfig(), log.Discard())
	if err := app.Init(); err != nil {
		t.Fatal(err)
	}
	defer app.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
