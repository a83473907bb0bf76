//go:build cgo

package audio

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// Context owns a miniaudio context and opens float32 playback devices on it
type Context struct {
	ctx *malgo.AllocatedContext
}

// NewContext initializes a miniaudio context that logs through slog
func NewContext() (*Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "message", message)
	})
	if err != nil {
		slog.Error("failed to initialize audio context", "error", err)
		return nil, err
	}

	slog.Debug("audio context initialized")
	return &Context{ctx: ctx}, nil
}

// OpenPlayback creates a stopped FormatF32 playback device whose callback
// hands render an interleaved view of the device buffer
func (c *Context) OpenPlayback(cfg StreamConfig, render RenderFunc) (*malgo.Device, error) {
	if c.ctx == nil {
		return nil, ErrBackendClosed
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.PeriodFrames)
	deviceConfig.Alsa.NoMMap = 1

	channels := cfg.Channels
	onSamples := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		// miniaudio does not guarantee a silent buffer
		clear(pOutputSample)

		n := int(framecount) * channels
		if limit := len(pOutputSample) / 4; n > limit {
			n = limit - limit%channels
		}
		if n == 0 {
			return
		}
		out := unsafe.Slice((*float32)(unsafe.Pointer(&pOutputSample[0])), n)
		render(out, channels, n/channels)
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		slog.Error("failed to initialize playback device", "error", err)
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	return device, nil
}

// Close releases the context; calling it twice is harmless
func (c *Context) Close() error {
	if c.ctx == nil {
		return nil
	}

	// malgo requires both Uninit() and Free()
	if err := c.ctx.Uninit(); err != nil {
		slog.Error("failed to uninitialize audio context", "error", err)
		return err
	}
	c.ctx.Free()
	c.ctx = nil

	slog.Debug("audio context closed")
	return nil
}

// IsValid checks if the context is still valid
func (c *Context) IsValid() bool {
	return c.ctx != nil
}
