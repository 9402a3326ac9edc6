// Package config provides configuration for the pulseai server.
// Flag parsing is done in cmd/pulseai; this package is data, defaults and env.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults.
const (
	DefaultPort             = "8080"
	DefaultProvider         = "gemini"
	DefaultGeminiModel      = "gemini-2.0-flash"
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultCaptureInterval  = 3 * time.Second
	DefaultInferenceTimeout = 20 * time.Second
	DefaultWebDir           = "./web"
	DefaultCameraPreset     = "480p"
)

// Provider names accepted by the inference layer.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Config holds all configuration for the pulseai server.
type Config struct {
	// Debug enables verbose request logging.
	Debug    bool
	LogLevel string

	// HTTP
	Port   string
	WebDir string

	// Inference
	Provider         string // gemini, openai, mock
	Model            string // empty uses the provider default
	BaseURL          string // optional override for OpenAI-compatible endpoints
	GoogleAPIKey     string
	OpenAIKey        string
	InferenceTimeout time.Duration

	// Capture
	CaptureInterval time.Duration
	CameraURL       string // remote websocket frame feed; empty disables
	CameraDevice    int    // local device index; -1 disables
	CameraPreset    string

	// Google sign-in (optional).
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		LogLevel:         "info",
		Port:             DefaultPort,
		WebDir:           DefaultWebDir,
		Provider:         DefaultProvider,
		InferenceTimeout: DefaultInferenceTimeout,
		CaptureInterval:  DefaultCaptureInterval,
		CameraDevice:     -1,
		CameraPreset:     DefaultCameraPreset,
	}
}

// LoadEnv applies environment overrides. Call it before flag parsing so
// flags win.
func (c *Config) LoadEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PULSE_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("PULSE_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("PULSE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("PULSE_WEB_DIR"); v != "" {
		c.WebDir = v
	}
	if v := os.Getenv("CAMERA_URL"); v != "" {
		c.CameraURL = v
	}
	if v := os.Getenv("CAMERA_DEVICE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CameraDevice = n
		}
	}
	if v := os.Getenv("PULSE_CAPTURE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CaptureInterval = d
		}
	}

	c.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	c.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	c.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
}

// ModelName returns the configured model or the provider default.
func (c *Config) ModelName() string {
	if c.Model != "" {
		return c.Model
	}
	if c.Provider == ProviderOpenAI {
		return DefaultOpenAIModel
	}
	return DefaultGeminiModel
}

// GoogleSignInEnabled reports whether OAuth credentials are configured.
func (c *Config) GoogleSignInEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderGemini:
		if c.GoogleAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_API_KEY is required for the gemini provider"))
		}
	case ProviderOpenAI:
		// Local OpenAI-compatible servers run without a key.
		if c.OpenAIKey == "" && c.BaseURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY or a base URL is required for the openai provider"))
		}
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}

	if c.Port == "" {
		errs = append(errs, errors.New("port must not be empty"))
	}
	if c.CaptureInterval <= 0 {
		errs = append(errs, errors.New("capture interval must be positive"))
	}
	if c.InferenceTimeout <= 0 {
		errs = append(errs, errors.New("inference timeout must be positive"))
	}

	return errors.Join(errs...)
}
