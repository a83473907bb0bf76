package player

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"stemdeck.click/internal/audio"
)

// ErrAlreadyPrepared is returned by Prepare on a prepared session.
var ErrAlreadyPrepared = errors.New("session already prepared")

// LoadEvent describes one LoadTrack attempt, successful or not.
type LoadEvent struct {
	SessionID  string
	Path       string
	Format     string
	Handle     int
	Channels   int
	SampleRate int
	Frames     int
	Duration   time.Duration
	Time       time.Time
	Err        error
}

// LoadHook observes track loads
type LoadHook func(event LoadEvent)

// TrackInfo is a read-only view of a loaded track for display.
type TrackInfo struct {
	Handle     int
	Name       string
	Format     string
	Channels   int
	SampleRate int
	Frames     int
	Duration   time.Duration
	Gain       float32
	Pan        float32
	Position   float32
	Amplitude  float32
	Playing    bool
}

// Options configures a Session.
type Options struct {
	SampleRate   int
	PeriodFrames int
	BackendType  string
	DefaultGain  float32
	PanLaw       audio.PanLaw
}

// Option customizes a Session
type Option func(*Session)

// WithFilesystem sets the filesystem LoadTrack reads from
func WithFilesystem(fs afero.Fs) Option {
	return func(s *Session) { s.fs = fs }
}

// WithBackendFactory sets how Prepare creates the output backend
func WithBackendFactory(factory audio.BackendFactory) Option {
	return func(s *Session) { s.factory = factory }
}

// WithBackend makes Prepare use an existing backend instead of the factory
func WithBackend(backend audio.AudioBackend) Option {
	return func(s *Session) { s.preset = backend }
}

// WithRegistry replaces the default decoder registry
func WithRegistry(registry *audio.DecoderRegistry) Option {
	return func(s *Session) { s.registry = registry }
}

// WithLoadHook registers an observer for LoadTrack
func WithLoadHook(hook LoadHook) Option {
	return func(s *Session) { s.hooks = append(s.hooks, hook) }
}

// Session is the control surface: one output stream and its tracks.
// Prepare opens the stream, Reset tears it down.
type Session struct {
	mu       sync.Mutex
	id       string
	opts     Options
	fs       afero.Fs
	factory  audio.BackendFactory
	preset   audio.AudioBackend
	registry *audio.DecoderRegistry
	hooks    []LoadHook

	channels int
	backend  audio.AudioBackend
	player   *MultiPlayer
}

// NewSession creates an unprepared session
func NewSession(opts Options, options ...Option) *Session {
	if opts.SampleRate == 0 {
		opts.SampleRate = 44100
	}
	if opts.PanLaw == nil {
		opts.PanLaw = audio.PanBalance
	}
	if opts.DefaultGain == 0 {
		opts.DefaultGain = 1
	}

	s := &Session{
		id:   uuid.NewString(),
		opts: opts,
	}
	for _, o := range options {
		o(s)
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.factory == nil {
		s.factory = audio.NewBackendFactory()
	}
	if s.registry == nil {
		s.registry = audio.NewDefaultRegistry()
	}
	return s
}

// ID identifies this session in load history
func (s *Session) ID() string {
	return s.id
}

// Prepare opens the output stream with channelCount channels. The stream
// stays stopped until Play.
func (s *Session) Prepare(channelCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		return ErrAlreadyPrepared
	}

	cfg := audio.StreamConfig{
		Channels:     channelCount,
		SampleRate:   s.opts.SampleRate,
		PeriodFrames: s.opts.PeriodFrames,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	backend := s.preset
	if backend == nil {
		var err error
		backend, err = s.factory.CreateBackend(s.opts.BackendType)
		if err != nil {
			return err
		}
	}

	mp := NewMultiPlayer(backend)
	if err := backend.Open(cfg, mp.RenderCallback); err != nil {
		backend.Close()
		return fmt.Errorf("open %s output: %w", backend.Name(), err)
	}

	s.channels = channelCount
	s.backend = backend
	s.player = mp

	slog.Info("session prepared",
		"session_id", s.id,
		"backend", backend.Name(),
		"channels", channelCount,
		"sample_rate", cfg.SampleRate)
	return nil
}

func (s *Session) prepared() (*MultiPlayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil, ErrNotPrepared
	}
	return s.player, nil
}

// LoadTrack decodes path and registers it at the next handle. Nothing is
// registered when decoding fails.
func (s *Session) LoadTrack(path string) (int, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		err = fmt.Errorf("read track: %w", err)
		s.notify(LoadEvent{Path: path, Handle: -1, Err: err})
		return -1, err
	}
	return s.LoadTrackBytes(path, data)
}

// LoadTrackBytes is LoadTrack for a file already in memory. name is used
// for format detection and display.
func (s *Session) LoadTrackBytes(name string, data []byte) (int, error) {
	mp, err := s.prepared()
	if err != nil {
		return -1, err
	}

	buf, format, err := s.registry.DecodeBytes(name, data)
	if err != nil {
		s.notify(LoadEvent{Path: name, Format: format, Handle: -1, Err: err})
		return -1, err
	}

	if buf.SampleRate() != s.opts.SampleRate {
		slog.Warn("track sample rate differs from output, playback speed will be off",
			"track", name,
			"track_sample_rate", buf.SampleRate(),
			"output_sample_rate", s.opts.SampleRate)
	}

	source := audio.NewFileSource(buf, s.opts.PanLaw)
	source.SetGain(s.opts.DefaultGain)

	s.mu.Lock()
	if s.player != mp {
		// reset while decoding
		s.mu.Unlock()
		s.notify(LoadEvent{Path: name, Format: format, Handle: -1, Err: ErrNotPrepared})
		return -1, ErrNotPrepared
	}
	handle := mp.AddSource(filepath.Base(name), format, source)
	s.mu.Unlock()

	s.notify(LoadEvent{
		Path:       name,
		Format:     format,
		Handle:     handle,
		Channels:   buf.Channels(),
		SampleRate: buf.SampleRate(),
		Frames:     buf.NumFrames(),
		Duration:   buf.Duration(),
	})
	return handle, nil
}

func (s *Session) notify(event LoadEvent) {
	event.SessionID = s.id
	event.Time = time.Now()
	for _, hook := range s.hooks {
		hook(event)
	}
}

// Play restarts every track from the beginning and starts the stream.
func (s *Session) Play() error {
	mp, err := s.prepared()
	if err != nil {
		return err
	}
	if err := mp.TriggerAll(); err != nil {
		return err
	}
	return mp.Resume()
}

// Pause stops the stream without moving any cursor.
func (s *Session) Pause() error {
	mp, err := s.prepared()
	if err != nil {
		return err
	}
	return mp.Pause()
}

// Resume restarts the stream after Pause.
func (s *Session) Resume() error {
	mp, err := s.prepared()
	if err != nil {
		return err
	}
	return mp.Resume()
}

// Trigger restarts a single track.
func (s *Session) Trigger(handle int) error {
	mp, err := s.prepared()
	if err != nil {
		return err
	}
	return mp.Trigger(handle)
}

// Unload removes a track, leaving its handle unused.
func (s *Session) Unload(handle int) error {
	mp, err := s.prepared()
	if err != nil {
		return err
	}
	return mp.Remove(handle)
}

// Reset drops all tracks and closes the stream. The session can be
// prepared again afterwards.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return nil
	}

	// stopped first so clearing does not restart the stream
	stopErr := s.backend.Stop()
	clearErr := s.player.Clear()
	closeErr := s.backend.Close()

	s.player = nil
	s.backend = nil
	s.preset = nil
	s.channels = 0

	slog.Info("session reset", "session_id", s.id)
	return errors.Join(stopErr, clearErr, closeErr)
}

// SetPosition seeks every track to fraction of its length.
func (s *Session) SetPosition(fraction float32) error {
	mp, err := s.prepared()
	if err != nil {
		return err
	}
	return mp.SetPositionForAll(fraction)
}

func (s *Session) track(handle int) (*Track, error) {
	mp, err := s.prepared()
	if err != nil {
		return nil, err
	}
	return mp.Track(handle)
}

// SetGain sets a track's linear gain. It applies without pausing.
func (s *Session) SetGain(handle int, gain float32) error {
	t, err := s.track(handle)
	if err != nil {
		return err
	}
	t.Source.SetGain(gain)
	return nil
}

// SetPan sets a track's pan in [-1, 1]. It applies without pausing.
func (s *Session) SetPan(handle int, pan float32) error {
	t, err := s.track(handle)
	if err != nil {
		return err
	}
	t.Source.SetPan(pan)
	return nil
}

// GetPosition reports how far through its buffer a track is, in [0, 1].
func (s *Session) GetPosition(handle int) (float32, error) {
	t, err := s.track(handle)
	if err != nil {
		return 0, err
	}
	return t.Source.Position(), nil
}

// GetAmplitude reports the track's most recent peak level, or 0 when it is
// not playing.
func (s *Session) GetAmplitude(handle int) (float32, error) {
	t, err := s.track(handle)
	if err != nil {
		return 0, err
	}
	if !t.Source.IsPlaying() {
		return 0, nil
	}
	return t.Source.Amplitude(), nil
}

// IsRunning reports whether the output stream is started.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend != nil && s.backend.IsPlaying()
}

// Finished reports whether every track has played to its end.
func (s *Session) Finished() bool {
	mp, err := s.prepared()
	if err != nil {
		return true
	}
	return mp.Finished()
}

// Channels is the prepared output channel count, 0 before Prepare.
func (s *Session) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels
}

// SampleRate is the output sample rate.
func (s *Session) SampleRate() int {
	return s.opts.SampleRate
}

// Player exposes the mixer, nil before Prepare.
func (s *Session) Player() *MultiPlayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// Tracks snapshots every live track.
func (s *Session) Tracks() []TrackInfo {
	mp, err := s.prepared()
	if err != nil {
		return nil
	}

	tracks := mp.Tracks()
	infos := make([]TrackInfo, 0, len(tracks))
	for _, t := range tracks {
		buf := t.Buffer()
		playing := t.Source.IsPlaying()
		var amp float32
		if playing {
			amp = t.Source.Amplitude()
		}
		infos = append(infos, TrackInfo{
			Handle:     t.Handle,
			Name:       t.Name,
			Format:     t.Format,
			Channels:   buf.Channels(),
			SampleRate: buf.SampleRate(),
			Frames:     buf.NumFrames(),
			Duration:   buf.Duration(),
			Gain:       t.Source.Gain(),
			Pan:        t.Source.Pan(),
			Position:   t.Source.Position(),
			Amplitude:  amp,
			Playing:    playing,
		})
	}
	return infos
}
