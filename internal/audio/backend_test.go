package audio

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNullBackendPump(t *testing.T) {
	backend := NewNullBackend(false)

	var calls int
	err := backend.Open(StreamConfig{Channels: 2, SampleRate: 48000, PeriodFrames: 64}, func(out []float32, channels, frames int) {
		calls++
		if channels != 2 || len(out) != frames*channels {
			t.Errorf("unexpected render shape: len=%d channels=%d frames=%d", len(out), channels, frames)
		}
		for i := range out {
			if out[i] != 0 {
				t.Fatal("render buffer must be zeroed")
			}
			out[i] = 1
		}
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if out := backend.Pump(16); out != nil {
		t.Error("stopped backend should render nothing")
	}

	if err := backend.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !backend.IsPlaying() {
		t.Error("expected playing after start")
	}

	out := backend.Pump(16)
	if len(out) != 32 {
		t.Fatalf("expected 32 samples, got %d", len(out))
	}
	backend.Pump(128) // larger than the period grows scratch
	if calls != 2 {
		t.Errorf("expected 2 render calls, got %d", calls)
	}

	if err := backend.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if backend.IsPlaying() {
		t.Error("expected stopped")
	}

	if err := backend.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Errorf("double close should not error: %v", err)
	}
	if err := backend.Start(); !errors.Is(err, ErrBackendClosed) {
		t.Errorf("expected ErrBackendClosed, got %v", err)
	}
}

func TestNullBackendStartBeforeOpen(t *testing.T) {
	backend := NewNullBackend(false)
	if err := backend.Start(); !errors.Is(err, ErrBackendNotOpen) {
		t.Errorf("expected ErrBackendNotOpen, got %v", err)
	}
}

func TestNullBackendRealtimeClock(t *testing.T) {
	backend := NewNullBackend(true)

	var frames atomic.Int64
	err := backend.Open(StreamConfig{Channels: 1, SampleRate: 8000, PeriodFrames: 80}, func(out []float32, channels, n int) {
		frames.Add(int64(n))
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := backend.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for frames.Load() < 240 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if frames.Load() < 240 {
		t.Errorf("clock rendered only %d frames", frames.Load())
	}

	after := frames.Load()
	time.Sleep(30 * time.Millisecond)
	if frames.Load() != after {
		t.Error("render continued after close")
	}
}

func TestStreamConfigValidate(t *testing.T) {
	testCases := []struct {
		cfg   StreamConfig
		valid bool
	}{
		{StreamConfig{Channels: 1, SampleRate: 44100}, true},
		{StreamConfig{Channels: 2, SampleRate: 48000, PeriodFrames: 256}, true},
		{StreamConfig{Channels: 0, SampleRate: 44100}, false},
		{StreamConfig{Channels: 3, SampleRate: 44100}, false},
		{StreamConfig{Channels: 2, SampleRate: 0}, false},
		{StreamConfig{Channels: 2, SampleRate: 44100, PeriodFrames: -1}, false},
	}

	for _, tc := range testCases {
		err := tc.cfg.Validate()
		if (err == nil) != tc.valid {
			t.Errorf("Validate(%+v) = %v, expected valid=%v", tc.cfg, err, tc.valid)
		}
	}
}

func TestBackendFactory(t *testing.T) {
	deviceErr := errors.New("no device")
	failing := NewBackendFactoryWithDependencies(func(string) (AudioBackend, error) {
		return nil, deviceErr
	}, false)

	backend, err := failing.CreateBackend("auto")
	if err != nil {
		t.Fatalf("auto should fall back to null, got %v", err)
	}
	if backend.Name() != "null" {
		t.Errorf("expected null fallback, got %s", backend.Name())
	}

	_, err = failing.CreateBackend("malgo")
	if !errors.Is(err, ErrBackendCreationFailed) || !errors.Is(err, deviceErr) {
		t.Errorf("expected wrapped creation failure, got %v", err)
	}

	_, err = failing.CreateBackend("pulseaudio")
	if !errors.Is(err, ErrInvalidBackendType) {
		t.Errorf("expected ErrInvalidBackendType, got %v", err)
	}

	var requested string
	recording := NewBackendFactoryWithDependencies(func(name string) (AudioBackend, error) {
		requested = name
		return NewNullBackend(false), nil
	}, false)
	if _, err := recording.CreateBackend(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requested != "malgo" {
		t.Errorf("auto should prefer malgo, requested %q", requested)
	}

	for _, name := range []string{"", "auto", "malgo", "oto", "null"} {
		if !recording.IsValidBackendType(name) {
			t.Errorf("%q should be valid", name)
		}
	}
	if recording.IsValidBackendType("system_command") {
		t.Error("system_command should not be valid")
	}
}
