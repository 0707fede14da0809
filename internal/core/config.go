package core

import (
	"fmt"
	"time"
)

// Engine defaults. Definitions are authored against these values, so hosts
// should only change them when the definition explicitly targets another size.
const (
	DefaultFrameRate  = 30
	DefaultWidth      = 64
	DefaultHeight     = 64
	DefaultBackground = "#000000"
)

// EngineConfig describes the fixed execution environment handed to user code.
type EngineConfig struct {
	FrameRate  int    // Update ticks per second
	Width      int    // Surface width in logical pixels
	Height     int    // Surface height in logical pixels
	Background string // Color the surface is cleared to before init runs
}

// DefaultConfig returns an EngineConfig with the standard 64x64 @ 30 fps setup.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		FrameRate:  DefaultFrameRate,
		Width:      DefaultWidth,
		Height:     DefaultHeight,
		Background: DefaultBackground,
	}
}

// Interval returns the delay between two update ticks (1s / FrameRate).
func (c EngineConfig) Interval() time.Duration {
	rate := c.FrameRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	return time.Second / time.Duration(rate)
}

// Validate reports the first invalid field, if any.
func (c EngineConfig) Validate() error {
	if c.FrameRate <= 0 || c.FrameRate > 1000 {
		return fmt.Errorf("frame rate must be in 1..1000, got %d", c.FrameRate)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("surface size must be positive, got %dx%d", c.Width, c.Height)
	}
	if _, err := ParseColor(c.Background); err != nil {
		return fmt.Errorf("background: %w", err)
	}
	return nil
}

// BackgroundColor returns the parsed background, falling back to black.
func (c EngineConfig) BackgroundColor() Color {
	col, err := ParseColor(c.Background)
	if err != nil {
		return Black
	}
	return col
}
