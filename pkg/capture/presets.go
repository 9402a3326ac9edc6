package capture

import "time"

// Preset names for common configurations
const (
	Preset240p = "240p"
	Preset480p = "480p"
	Preset720p = "720p"
	PresetLow  = "low" // low bandwidth, slow cadence
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		Preset240p: QVGAConfig(),
		Preset480p: DefaultConfig(),
		Preset720p: HD720Config(),
		PresetLow:  LowBandwidthConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{Preset240p, Preset480p, Preset720p, PresetLow}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// QVGAConfig returns a 320x240 configuration.
func QVGAConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	return cfg
}

// HD720Config returns 720p HD configuration.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	cfg.Quality = 85
	return cfg
}

// LowBandwidthConfig trades detail and cadence for upload size.
func LowBandwidthConfig() Config {
	cfg := QVGAConfig()
	cfg.Quality = 60
	cfg.Interval = 5 * time.Second
	return cfg
}
