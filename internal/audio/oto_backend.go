//go:build cgo

package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process
var (
	otoMu      sync.Mutex
	otoContext *oto.Context
	otoConfig  StreamConfig
)

func sharedOtoContext(cfg StreamConfig) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoContext != nil {
		if otoConfig.Channels != cfg.Channels || otoConfig.SampleRate != cfg.SampleRate {
			return nil, fmt.Errorf("%w: oto context already running at %d Hz, %d channels",
				ErrBackendNotAvailable, otoConfig.SampleRate, otoConfig.Channels)
		}
		return otoContext, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatFloat32LE,
	}
	if cfg.PeriodFrames > 0 {
		op.BufferSize = time.Duration(cfg.PeriodFrames) * time.Second / time.Duration(cfg.SampleRate)
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendNotAvailable, err)
	}
	<-readyChan

	otoContext = ctx
	otoConfig = cfg
	return ctx, nil
}

// renderReader adapts a RenderFunc to the io.Reader oto pulls from
type renderReader struct {
	render   RenderFunc
	channels int
	scratch  []float32
}

func (r *renderReader) Read(p []byte) (int, error) {
	frameBytes := 4 * r.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	n := frames * r.channels
	if cap(r.scratch) < n {
		r.scratch = make([]float32, n)
	}
	buf := r.scratch[:n]
	clear(buf)
	r.render(buf, r.channels, frames)

	for i, v := range buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	return n * 4, nil
}

// OtoBackend plays through an oto player that pulls from the render callback
type OtoBackend struct {
	mutex  sync.Mutex
	player *oto.Player
	closed bool
}

// NewOtoBackend creates an unopened backend
func NewOtoBackend() *OtoBackend {
	return &OtoBackend{}
}

func (ob *OtoBackend) Name() string {
	return "oto"
}

func (ob *OtoBackend) Open(cfg StreamConfig, render RenderFunc) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.closed {
		return ErrBackendClosed
	}
	if ob.player != nil {
		return fmt.Errorf("oto backend already open")
	}

	ctx, err := sharedOtoContext(cfg)
	if err != nil {
		return err
	}

	ob.player = ctx.NewPlayer(&renderReader{render: render, channels: cfg.Channels})

	slog.Info("oto player initialized",
		"channels", cfg.Channels,
		"sample_rate", cfg.SampleRate)
	return nil
}

func (ob *OtoBackend) Start() error {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.closed {
		return ErrBackendClosed
	}
	if ob.player == nil {
		return ErrBackendNotOpen
	}
	ob.player.Play()
	return nil
}

// Stop pauses the player. A Read already in flight may still complete.
func (ob *OtoBackend) Stop() error {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.closed {
		return ErrBackendClosed
	}
	if ob.player == nil {
		return nil
	}
	ob.player.Pause()
	return nil
}

func (ob *OtoBackend) Close() error {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.closed {
		return nil
	}
	ob.closed = true

	if ob.player != nil {
		err := ob.player.Close()
		ob.player = nil
		if err != nil {
			return fmt.Errorf("error closing oto player: %w", err)
		}
	}
	return nil
}

func (ob *OtoBackend) IsPlaying() bool {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()
	return ob.player != nil && ob.player.IsPlaying()
}
