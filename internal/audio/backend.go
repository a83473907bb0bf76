package audio

import (
	"errors"
	"fmt"
)

// Common errors for AudioBackend implementations
var (
	ErrBackendNotAvailable = errors.New("audio backend not available")
	ErrBackendClosed       = errors.New("audio backend is closed")
	ErrBackendNotOpen      = errors.New("audio backend is not open")
)

// StreamConfig is the output stream negotiated with the device.
type StreamConfig struct {
	Channels     int
	SampleRate   int
	PeriodFrames int
}

// Validate checks the stream shape before any device is touched.
func (c StreamConfig) Validate() error {
	if c.Channels < 1 || c.Channels > 2 {
		return fmt.Errorf("output channels must be 1 or 2, got %d", c.Channels)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.PeriodFrames < 0 {
		return fmt.Errorf("period frames must not be negative, got %d", c.PeriodFrames)
	}
	return nil
}

// RenderFunc fills out with frames interleaved frames. out is zeroed by the
// backend before each call. It runs on the device thread and must not block.
type RenderFunc func(out []float32, channels, frames int)

// AudioBackend owns an output device that periodically calls a RenderFunc
type AudioBackend interface {
	// Open negotiates the stream and registers the render callback
	Open(cfg StreamConfig, render RenderFunc) error

	// Start and Stop resume and suspend callbacks without losing state
	Start() error
	Stop() error
	Close() error

	IsPlaying() bool
	Name() string
}
