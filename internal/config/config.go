// Package config provides YAML-based configuration loading for pixelbox.
package config

import (
	"fmt"
	"time"

	"github.com/vovakirdan/pixelbox/internal/core"
)

// Config is the full pixelbox configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Samples SamplesConfig `yaml:"samples"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Window  WindowConfig  `yaml:"window"`
}

// EngineConfig defines the loop timing and the drawing surface.
type EngineConfig struct {
	FrameRate  int    `yaml:"frame_rate"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Background string `yaml:"background"`
	Script     string `yaml:"script"` // Engine for definitions that name none
}

// SamplesConfig defines where sample definitions come from.
type SamplesConfig struct {
	Default string `yaml:"default"`
	Dir     string `yaml:"dir"` // Optional directory searched before the embedded samples
	URL     string `yaml:"url"` // Optional base URL; <url>/<id>.json
}

// StorageConfig defines the library database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig defines the network players.
type ServerConfig struct {
	HTTPAddr    string        `yaml:"http_addr"`
	SSHAddr     string        `yaml:"ssh_addr"`
	HostKeyPath string        `yaml:"host_key"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// LogConfig defines logging output.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // Used by terminal modes, which own stdout
}

// WindowConfig defines the desktop player window.
type WindowConfig struct {
	Scale int    `yaml:"scale"`
	Title string `yaml:"title"`
}

// Core converts the engine section to the runtime's configuration.
func (e EngineConfig) Core() core.EngineConfig {
	return core.EngineConfig{
		FrameRate:  e.FrameRate,
		Width:      e.Width,
		Height:     e.Height,
		Background: e.Background,
	}
}

// Validate reports the first invalid setting, if any.
func (c Config) Validate() error {
	if err := c.Engine.Core().Validate(); err != nil {
		return fmt.Errorf("config: engine: %w", err)
	}
	if c.Window.Scale < 1 {
		return fmt.Errorf("config: window: scale must be at least 1, got %d", c.Window.Scale)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log: unknown level %q", c.Log.Level)
	}
	return nil
}
