package config

import (
	_ "embed"
	"time"

	"github.com/vovakirdan/pixelbox/internal/core"
)

//go:embed defaults/pixelbox.yaml
var defaultYAML []byte

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			FrameRate:  core.DefaultFrameRate,
			Width:      core.DefaultWidth,
			Height:     core.DefaultHeight,
			Background: core.DefaultBackground,
			Script:     "js",
		},
		Samples: SamplesConfig{
			Default: "sample-game",
		},
		Storage: StorageConfig{
			Path: "~/.pixelbox/library.db",
		},
		Server: ServerConfig{
			HTTPAddr:    ":8080",
			SSHAddr:     ":23234",
			IdleTimeout: 30 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
			File:  "~/.pixelbox/pixelbox.log",
		},
		Window: WindowConfig{
			Scale: 8,
			Title: "pixelbox",
		},
	}
}

// DefaultYAML returns the embedded default configuration file.
func DefaultYAML() []byte {
	return defaultYAML
}
