// Package player mixes loaded tracks into the output stream and exposes
// the transport controls.
package player

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"stemdeck.click/internal/audio"
)

// Player errors
var (
	ErrInvalidHandle = errors.New("invalid track handle")
	ErrNotPrepared   = errors.New("session not prepared")
)

// Transport is the part of the output stream the player controls.
type Transport interface {
	Start() error
	Stop() error
	IsPlaying() bool
}

// Track is one loaded buffer and the source that plays it.
type Track struct {
	Handle int
	Name   string
	Format string
	Source *audio.FileSource
}

// Buffer returns the decoded samples behind the track.
func (t *Track) Buffer() *audio.SampleBuffer {
	return t.Source.Buffer()
}

// MultiPlayer owns the tracks of a session. RenderCallback runs on the device
// thread and reads the track list without locking: the list is replaced,
// never modified in place, so appending a track leaves the render goroutine's
// view untouched. Removal clears a slot rather than shifting handles.
type MultiPlayer struct {
	mu        sync.Mutex
	tracks    atomic.Pointer[[]*Track]
	transport Transport
}

// NewMultiPlayer creates an empty player controlling transport
func NewMultiPlayer(transport Transport) *MultiPlayer {
	mp := &MultiPlayer{transport: transport}
	empty := make([]*Track, 0)
	mp.tracks.Store(&empty)
	return mp
}

// RenderCallback mixes every live track into out in handle order. out is not
// cleared here.
func (mp *MultiPlayer) RenderCallback(out []float32, channels, frames int) {
	for _, t := range *mp.tracks.Load() {
		if t != nil {
			t.Source.Mix(out, channels, frames)
		}
	}
}

// AddSource appends a track at the next handle.
func (mp *MultiPlayer) AddSource(name, format string, source *audio.FileSource) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	current := *mp.tracks.Load()
	next := make([]*Track, len(current), len(current)+1)
	copy(next, current)

	handle := len(current)
	next = append(next, &Track{Handle: handle, Name: name, Format: format, Source: source})
	mp.tracks.Store(&next)

	slog.Debug("track added", "handle", handle, "name", name)
	return handle
}

// Track returns the live track for handle.
func (mp *MultiPlayer) Track(handle int) (*Track, error) {
	tracks := *mp.tracks.Load()
	if handle < 0 || handle >= len(tracks) || tracks[handle] == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, handle)
	}
	return tracks[handle], nil
}

// Tracks returns the live tracks in handle order.
func (mp *MultiPlayer) Tracks() []*Track {
	tracks := *mp.tracks.Load()
	live := make([]*Track, 0, len(tracks))
	for _, t := range tracks {
		if t != nil {
			live = append(live, t)
		}
	}
	return live
}

// Trigger restarts one track from the beginning. The cursor reset runs with
// the stream stopped so a render in flight cannot overwrite it.
func (mp *MultiPlayer) Trigger(handle int) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	t, err := mp.Track(handle)
	if err != nil {
		return err
	}
	return mp.paused(t.Source.SetPlayMode)
}

// TriggerAll restarts every live track.
func (mp *MultiPlayer) TriggerAll() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.paused(func() {
		for _, t := range mp.Tracks() {
			t.Source.SetPlayMode()
		}
	})
}

// Pause stops the output stream. Cursors are kept.
func (mp *MultiPlayer) Pause() error {
	if err := mp.transport.Stop(); err != nil {
		return fmt.Errorf("pause stream: %w", err)
	}
	return nil
}

// Resume restarts the output stream where it stopped.
func (mp *MultiPlayer) Resume() error {
	if err := mp.transport.Start(); err != nil {
		return fmt.Errorf("resume stream: %w", err)
	}
	return nil
}

// paused runs fn with the stream stopped, restarting it only if it was running.
func (mp *MultiPlayer) paused(fn func()) error {
	running := mp.transport.IsPlaying()
	if running {
		if err := mp.Pause(); err != nil {
			return err
		}
	}
	fn()
	if running {
		return mp.Resume()
	}
	return nil
}

// SetPositionForAll moves every track to fraction of its own length.
func (mp *MultiPlayer) SetPositionForAll(fraction float32) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.paused(func() {
		for _, t := range mp.Tracks() {
			t.Source.SetPosition(fraction)
		}
	})
}

// Remove leaves a tombstone at handle. Other handles stay valid.
func (mp *MultiPlayer) Remove(handle int) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, err := mp.Track(handle); err != nil {
		return err
	}

	return mp.paused(func() {
		current := *mp.tracks.Load()
		next := make([]*Track, len(current))
		copy(next, current)
		next[handle] = nil
		mp.tracks.Store(&next)
	})
}

// Clear drops every track and restarts handle numbering.
func (mp *MultiPlayer) Clear() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.paused(func() {
		empty := make([]*Track, 0)
		mp.tracks.Store(&empty)
	})
}

// Finished reports whether no live track is still playing.
func (mp *MultiPlayer) Finished() bool {
	for _, t := range mp.Tracks() {
		if t.Source.IsPlaying() {
			return false
		}
	}
	return true
}
