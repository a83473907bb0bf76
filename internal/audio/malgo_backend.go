//go:build cgo

package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// MalgoBackend drives a miniaudio playback device in 32-bit float
type MalgoBackend struct {
	mutex   sync.Mutex
	context *Context
	device  *malgo.Device
	cfg     StreamConfig
	playing atomic.Bool
	closed  bool
}

// NewMalgoBackend creates an unopened backend
func NewMalgoBackend() *MalgoBackend {
	return &MalgoBackend{}
}

func (mb *MalgoBackend) Name() string {
	return "malgo"
}

// Open initializes the context and device. The device is not started.
func (mb *MalgoBackend) Open(cfg StreamConfig, render RenderFunc) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.closed {
		return ErrBackendClosed
	}
	if mb.device != nil {
		return fmt.Errorf("malgo backend already open")
	}

	if mb.context == nil {
		audioCtx, err := NewContext()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendNotAvailable, err)
		}
		mb.context = audioCtx
	}

	device, err := mb.context.OpenPlayback(cfg, render)
	if err != nil {
		return err
	}

	mb.device = device
	mb.cfg = cfg

	slog.Info("malgo playback device initialized",
		"channels", cfg.Channels,
		"sample_rate", cfg.SampleRate,
		"period_frames", cfg.PeriodFrames)
	return nil
}

func (mb *MalgoBackend) Start() error {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.closed {
		return ErrBackendClosed
	}
	if mb.device == nil {
		return ErrBackendNotOpen
	}
	if mb.playing.Load() {
		return nil
	}
	if err := mb.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	mb.playing.Store(true)
	return nil
}

// Stop returns once the device callback is no longer running
func (mb *MalgoBackend) Stop() error {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.closed {
		return ErrBackendClosed
	}
	if mb.device == nil || !mb.playing.Load() {
		return nil
	}
	if err := mb.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}
	mb.playing.Store(false)
	return nil
}

func (mb *MalgoBackend) Close() error {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.closed {
		return nil
	}
	mb.closed = true

	if mb.device != nil {
		if mb.playing.Load() {
			mb.device.Stop()
		}
		mb.device.Uninit()
		mb.device = nil
	}
	mb.playing.Store(false)

	if mb.context != nil {
		if err := mb.context.Close(); err != nil {
			return fmt.Errorf("error closing audio context: %w", err)
		}
		mb.context = nil
	}

	slog.Debug("malgo backend closed")
	return nil
}

func (mb *MalgoBackend) IsPlaying() bool {
	return mb.playing.Load()
}
