// Package camera owns frame acquisition: it reads frames from a Source as
// fast as the source allows and hands each one to a Publisher, latest wins.
package camera

import "fmt"

// Config holds camera parameters.
type Config struct {
	// Device is a V4L2 index ("0"), a device path, or a video file/URL.
	Device    string `json:"device" yaml:"device"`
	Width     int    `json:"width" yaml:"width"`         // Frame width in pixels
	Height    int    `json:"height" yaml:"height"`       // Frame height in pixels
	Framerate int    `json:"framerate" yaml:"framerate"` // Target FPS
}

// Limits for Validate.
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns 640x480 at 30 FPS on the first camera.
func DefaultConfig() Config {
	return Config{
		Device:    "0",
		Width:     640,
		Height:    480,
		Framerate: 30,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	if c.Device == "" {
		errs = append(errs, "device must not be empty")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errs = append(errs, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errs = append(errs, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errs = append(errs, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}

	return errs
}
