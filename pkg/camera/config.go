// Package camera provides the webcam capture adapter used by the scanner.
//
// A Webcam is set up once, played, advanced with Update on every loop cycle and
// stopped when the session ends. Downstream code reads the latest frame from the
// Surface and never mutates it.
package camera

import "fmt"

// Config holds the capture parameters for a webcam.
type Config struct {
	// Device is the OS camera index (0 is the first camera).
	Device int `json:"device" toml:"device"`

	// === Resolution ===
	Width     int `json:"width" toml:"width"`         // Frame width in pixels
	Height    int `json:"height" toml:"height"`       // Frame height in pixels
	Framerate int `json:"framerate" toml:"framerate"` // Requested capture FPS

	// Flip mirrors frames horizontally so the preview behaves like a mirror.
	Flip bool `json:"flip" toml:"flip"`

	// Quality is the JPEG quality (1-100) used for previews.
	Quality int `json:"quality" toml:"quality"`
}

// Capture limits accepted by Validate.
const (
	MinWidth     = 64
	MinHeight    = 64
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the scanner configuration: a mirrored 400x400 square.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     400,
		Height:    400,
		Framerate: 30,
		Flip:      true,
		Quality:   80,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 {
		errors = append(errors, "device must be >= 0")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}
