package audio

import (
	"log/slog"
	"sync"
	"time"
)

const defaultPeriodFrames = 512

// NullBackend renders into memory instead of a device. Tests drive it with
// Pump; in realtime mode a ticker pumps one period per period duration.
type NullBackend struct {
	mu       sync.Mutex
	cfg      StreamConfig
	render   RenderFunc
	scratch  []float32
	playing  bool
	closed   bool
	realtime bool
	stopTick chan struct{}
	tickDone chan struct{}
}

// NewNullBackend creates a backend with no device. realtime enables the
// internal clock.
func NewNullBackend(realtime bool) *NullBackend {
	return &NullBackend{realtime: realtime}
}

func (b *NullBackend) Name() string {
	return "null"
}

func (b *NullBackend) Open(cfg StreamConfig, render RenderFunc) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBackendClosed
	}
	if cfg.PeriodFrames == 0 {
		cfg.PeriodFrames = defaultPeriodFrames
	}
	b.cfg = cfg
	b.render = render
	b.scratch = make([]float32, cfg.PeriodFrames*cfg.Channels)

	slog.Debug("null backend opened",
		"channels", cfg.Channels,
		"sample_rate", cfg.SampleRate,
		"period_frames", cfg.PeriodFrames,
		"realtime", b.realtime)
	return nil
}

func (b *NullBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBackendClosed
	}
	if b.render == nil {
		return ErrBackendNotOpen
	}
	if b.playing {
		return nil
	}
	b.playing = true

	if b.realtime {
		b.stopTick = make(chan struct{})
		b.tickDone = make(chan struct{})
		go b.clock(b.stopTick, b.tickDone)
	}
	return nil
}

func (b *NullBackend) clock(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	period := time.Duration(b.cfg.PeriodFrames) * time.Second / time.Duration(b.cfg.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.Pump(b.cfg.PeriodFrames)
		}
	}
}

func (b *NullBackend) Stop() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBackendClosed
	}
	stop, done := b.stopTick, b.tickDone
	b.stopTick, b.tickDone = nil, nil
	b.playing = false
	b.mu.Unlock()

	// wait outside the lock, the clock may be inside Pump
	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (b *NullBackend) Close() error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil
	}

	if err := b.Stop(); err != nil {
		return err
	}

	b.mu.Lock()
	b.closed = true
	b.render = nil
	b.mu.Unlock()
	return nil
}

func (b *NullBackend) IsPlaying() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playing
}

// Pump runs the render callback for frames frames and returns the rendered
// interleaved samples. It renders nothing while stopped. The returned slice
// is reused by the next call.
func (b *NullBackend) Pump(frames int) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.playing || b.render == nil || frames <= 0 {
		return nil
	}
	n := frames * b.cfg.Channels
	if cap(b.scratch) < n {
		b.scratch = make([]float32, n)
	}
	out := b.scratch[:n]
	clear(out)
	b.render(out, b.cfg.Channels, frames)
	return out
}
