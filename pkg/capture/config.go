package capture

import (
	"fmt"
	"time"
)

// Config holds capture settings shared by device and browser sources.
type Config struct {
	Width    int           `json:"width"`    // Frame width in pixels
	Height   int           `json:"height"`   // Frame height in pixels
	Quality  int           `json:"quality"`  // JPEG quality 1-100
	Interval time.Duration `json:"interval"` // Minimum time between frames sent to inference
}

// Limits
const (
	MinWidth    = 160
	MaxWidth    = 1920
	MinHeight   = 120
	MaxHeight   = 1080
	MinInterval = 250 * time.Millisecond
)

// DefaultConfig returns the recommended configuration. Vision models accept
// small frames and bill by image size, so 640x480 is plenty.
func DefaultConfig() Config {
	return Config{
		Width:    640,
		Height:   480,
		Quality:  80,
		Interval: 3 * time.Second,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.Interval < MinInterval {
		errors = append(errors, fmt.Sprintf("interval must be at least %s", MinInterval))
	}

	return errors
}
