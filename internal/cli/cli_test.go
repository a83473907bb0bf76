package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"

	"stemdeck.click/internal/audio"
)

// newTestCLI builds a CLI on fs whose null backend runs on its own clock
// and whose device backends always fail.
func newTestCLI(t *testing.T, fs afero.Fs) *CLI {
	t.Helper()

	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	c := NewCLIWithFilesystem(fs)
	c.backendFactory = audio.NewBackendFactoryWithDependencies(func(string) (audio.AudioBackend, error) {
		return nil, errors.New("no audio device in tests")
	}, true)
	return c
}

func run(t *testing.T, fs afero.Fs, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	code := newTestCLI(t, fs).Run(append([]string{"stemdeck"}, args...), strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// noHistory keeps tests from touching the real XDG data directory
func noHistory(t *testing.T) {
	t.Setenv("STEMDECK_HISTORY", "false")
}

func writeTrack(t *testing.T, fs afero.Fs, path string, channels uint16, frames int, value int) {
	t.Helper()

	var buf bytes.Buffer
	writer := wav.NewWriter(&buf, uint32(frames), channels, 44100, 16)
	samples := make([]wav.Sample, frames)
	for i := range samples {
		samples[i] = wav.Sample{Values: [2]int{value, value}}
	}
	require.NoError(t, writer.WriteSamples(samples))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0644))
}

func writeConfig(t *testing.T, fs afero.Fs, path, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0644))
}

func TestCLI(t *testing.T) {
	cli := NewCLI()
	require.NotNil(t, cli.rootCmd)
	assert.Equal(t, "stemdeck", cli.rootCmd.Use)

	var names []string
	for _, cmd := range cli.rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"play", "info", "bounce", "history"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionFlag(t *testing.T) {
	for _, flag := range []string{"--version", "-v"} {
		code, stdout, _ := run(t, afero.NewMemMapFs(), flag)
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, "stemdeck version "+Version)
	}
}

func TestRootShowsHelp(t *testing.T) {
	noHistory(t)
	code, stdout, _ := run(t, afero.NewMemMapFs())
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "bounce")
	assert.Contains(t, stdout, "--backend")
}

func TestInvalidConfigRejected(t *testing.T) {
	noHistory(t)
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/cfg.json", `{"output_channels": 5}`)
	writeTrack(t, fs, "/a.wav", 1, 10, 100)

	code, _, stderr := run(t, fs, "--config", "/cfg.json", "info", "/a.wav")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "output_channels")

	code, _, _ = run(t, fs, "--config", "/missing.json", "info", "/a.wav")
	assert.Equal(t, 1, code)

	code, _, _ = run(t, fs, "--channels", "3", "info", "/a.wav")
	assert.Equal(t, 1, code)
}

func TestInfoCommand(t *testing.T) {
	noHistory(t)
	fs := afero.NewMemMapFs()
	writeTrack(t, fs, "/stems/drums.wav", 2, 100, 1000)

	code, stdout, stderr := run(t, fs, "info", "/stems")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "/stems/drums.wav: WAV")
	assert.Contains(t, stdout, "fmt ")
	assert.Contains(t, stdout, "data")
	assert.Contains(t, stdout, "PCM, 16-bit, 2 ch, 44100 Hz, block align 4")
	assert.Contains(t, stdout, "decoded:  2 ch, 44100 Hz, 100 frames")
}

func TestInfoReportsUnplayableTracks(t *testing.T) {
	noHistory(t)
	fs := afero.NewMemMapFs()
	writeTrack(t, fs, "/good.wav", 1, 10, 100)
	require.NoError(t, afero.WriteFile(fs, "/bad.wav", []byte("RIFF\x04\x00\x00\x00WAVE"), 0644))

	code, stdout, _ := run(t, fs, "info", "/good.wav", "/bad.wav")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "decoded:  1 ch")
	assert.Contains(t, stdout, "error:")
}

func TestPlayHeadless(t *testing.T) {
	noHistory(t)
	fs := afero.NewMemMapFs()
	writeTrack(t, fs, "/a.wav", 1, 441, 1000)
	writeTrack(t, fs, "/b.wav", 2, 220, 1000)

	code, stdout, stderr := run(t, fs, "--backend", "null", "play", "--no-tui",
		"--gain", "0.5", "--pan", "0,-1", "/a.wav", "/b.wav")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "[0] a.wav  WAV 1ch 44100Hz")
	assert.Contains(t, stdout, "gain 0.50 pan +0.00")
	assert.Contains(t, stdout, "[1] b.wav  WAV 2ch 44100Hz")
	assert.Contains(t, stdout, "gain 1.00 pan -1.00")
}

func TestPlayStartPosition(t *testing.T) {
	noHistory(t)
	fs := afero.NewMemMapFs()
	writeTrack(t, fs, "/a.wav", 1, 441, 1000)

	code, _, stderr := run(t, fs, "--backend", "null", "play", "--no-tui", "--start", "0.9", "/a.wav")
	assert.Equal(t, 0, code, stderr)

	code, _, _ = run(t, fs, "--backend", "null", "play", "--no-tui", "--start", "1.5", "/a.wav")
	assert.Equal(t, 1, code)
}

func TestPlayFailures(t *testing.T) {
	noHistory(t)
	fs := afero.NewMemMapFs()
	writeTrack(t, fs, "/a.wav", 1, 10, 1000)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"--backend", "null", "play", "/nope.wav"}, "nope.wav"},
		{"no args", []string{"play"}, "requires at least 1 arg"},
		{"device unavailable", []string{"--backend", "malgo", "play", "/a.wav"}, "backend creation failed"},
		{"unknown backend", []string{"--backend", "alsa", "play", "/a.wav"}, "invalid audio backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := run(t, fs, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestPlayAutoFallsBackToNull(t *testing.T) {
	noHistory(t)
	fs := afero.NewMemMapFs()
	writeTrack(t, fs, "/a.wav", 1, 100, 1000)

	code, _, stderr := run(t, fs, "--backend", "auto", "--log-level", "warn", "play", "--no-tui", "/a.wav")
	assert.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "falling back to null output")
}

func decodeOutput(t *testing.T, fs afero.Fs, path string) *audio.SampleBuffer {
	t.Helper()

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	buf, err := audio.NewWavDecoder().Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return buf
}

func TestBounceMixesTracks(t *testing.T) {
	noHistory(t)
	fs := afero.NewMemMapFs()
	writeTrack(t, fs, "/a.wav", 1, 100, 8192)
	writeTrack(t, fs, "/b.wav", 1, 50, 8192)

	code, stdout, stderr := run(t, fs, "bounce", "/a.wav", "/b.wav", "-o", "/mix.wav")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "wrote /mix.wav")

	mix := decodeOutput(t, fs, "/mix.wav")
	assert.Equal(t, 2, mix.Channels())
	assert.Equal(t, 44100, mix.SampleRate())
	require.GreaterOrEqual(t, mix.NumFrames(), 100)

	samples := mix.Samples()
	assert.InDelta(t, 0.5, samples[0], 0.001, "both tracks sum")
	assert.InDelta(t, 0.5, samples[1], 0.001)
	assert.InDelta(t, 0.25, samples[2*60], 0.001, "second track ended")
	assert.InDelta(t, 0, samples[2*100], 0.001, "silence after every track ends")
}

func TestBounceLimitAndChannels(t *testing.T) {
	noHistory(t)
	fs := afero.NewMemMapFs()
	writeTrack(t, fs, "/a.wav", 2, 1000, 8192)

	code, _, stderr := run(t, fs, "--channels", "1", "bounce", "/a.wav", "--seconds", "0.001", "-o", "/short.wav")
	require.Equal(t, 0, code, stderr)

	out := decodeOutput(t, fs, "/short.wav")
	assert.Equal(t, 1, out.Channels())
	assert.Equal(t, 44, out.NumFrames())
	assert.InDelta(t, 0.5, out.Samples()[0], 0.001, "stereo track summed into mono")
}

// closeFailFs hands out files whose Close reports a write-back failure.
type closeFailFs struct {
	afero.Fs
}

type closeFailFile struct {
	afero.File
}

func (f closeFailFile) Close() error {
	f.File.Close()
	return errors.New("disk full")
}

func (fs closeFailFs) Create(name string) (afero.File, error) {
	f, err := fs.Fs.Create(name)
	if err != nil {
		return nil, err
	}
	return closeFailFile{f}, nil
}

func TestBounceReportsCloseError(t *testing.T) {
	noHistory(t)
	fs := closeFailFs{afero.NewMemMapFs()}
	writeTrack(t, fs, "/a.wav", 1, 10, 100)

	code, stdout, stderr := run(t, fs, "bounce", "/a.wav", "-o", "/mix.wav")
	assert.Equal(t, 1, code)
	assert.NotContains(t, stdout, "wrote /mix.wav")
	assert.Contains(t, stderr, "failed to close /mix.wav")
}

func TestBounceRequiresOutput(t *testing.T) {
	noHistory(t)
	fs := afero.NewMemMapFs()
	writeTrack(t, fs, "/a.wav", 1, 10, 100)

	code, _, stderr := run(t, fs, "bounce", "/a.wav")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "output")
}

func TestHistoryRecordsLoads(t *testing.T) {
	t.Setenv("STEMDECK_HISTORY", "")
	fs := afero.NewMemMapFs()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	writeConfig(t, fs, "/cfg.json", fmt.Sprintf(`{"history": {"enabled": true, "database_path": %q}}`, dbPath))
	writeTrack(t, fs, "/good.wav", 1, 10, 100)
	require.NoError(t, afero.WriteFile(fs, "/bad.wav", []byte("RIFF\x04\x00\x00\x00WAVE"), 0644))

	code, _, stderr := run(t, fs, "--config", "/cfg.json", "bounce", "/good.wav", "-o", "/out.wav")
	require.Equal(t, 0, code, stderr)
	code, _, _ = run(t, fs, "--config", "/cfg.json", "bounce", "/bad.wav", "-o", "/out2.wav")
	require.Equal(t, 1, code)

	code, stdout, stderr := run(t, fs, "--config", "/cfg.json", "history")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "/good.wav")
	assert.Contains(t, stdout, "FAILED  /bad.wav")

	code, stdout, _ = run(t, fs, "--config", "/cfg.json", "history", "--failed", "--since", "today")
	require.Equal(t, 0, code)
	assert.NotContains(t, stdout, "/good.wav")
	assert.Contains(t, stdout, "/bad.wav")

	code, stdout, _ = run(t, fs, "--config", "/cfg.json", "history", "--summary")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Loads:    2")
	assert.Contains(t, stdout, "Failures: 1")
	assert.Contains(t, stdout, "Sessions: 2")

	code, stdout, _ = run(t, fs, "--config", "/cfg.json", "history", "--session", "nobody")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "No track loads found.")
}

func TestHistoryDisabled(t *testing.T) {
	noHistory(t)
	code, _, stderr := run(t, afero.NewMemMapFs(), "history")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not enabled")
}

func TestFileLogging(t *testing.T) {
	noHistory(t)
	fs := afero.NewMemMapFs()
	logPath := filepath.Join(t.TempDir(), "logs", "stemdeck.log")
	writeConfig(t, fs, "/cfg.json", fmt.Sprintf(`{"log_level": "error", "file_logging": {"enabled": true, "filename": %q, "max_size_mb": 1}}`, logPath))
	writeTrack(t, fs, "/a.wav", 1, 10, 100)

	code, _, stderr := run(t, fs, "--config", "/cfg.json", "info", "/a.wav")
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "logging setup completed", "file receives debug records")
	assert.NotContains(t, stderr, "logging setup completed", "stderr stays at the configured level")
}

type fakeDetector struct{ terminal bool }

func (f fakeDetector) IsTerminal(int) bool { return f.terminal }

func TestIsInteractive(t *testing.T) {
	c := NewCLIWithFilesystem(afero.NewMemMapFs())

	c.terminalDetector = fakeDetector{terminal: true}
	assert.False(t, c.isInteractive(strings.NewReader(""), &bytes.Buffer{}), "buffers are never terminals")
	assert.True(t, c.isInteractive(os.Stdin, os.Stdout))

	c.terminalDetector = fakeDetector{terminal: false}
	assert.False(t, c.isInteractive(os.Stdin, os.Stdout))
}

func TestTeeHandlerLevels(t *testing.T) {
	var quiet, verbose bytes.Buffer
	handler := newTeeHandler(
		slog.NewTextHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewTextHandler(&verbose, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(handler).With("component", "test")

	logger.Debug("detail")
	logger.Warn("problem")

	assert.NotContains(t, quiet.String(), "detail")
	assert.Contains(t, quiet.String(), "problem")
	assert.Contains(t, verbose.String(), "detail")
	assert.Contains(t, verbose.String(), "component=test")

	assert.False(t, newTeeHandler(
		slog.NewTextHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&verbose, &slog.HandlerOptions{Level: slog.LevelWarn}),
	).Enabled(context.Background(), slog.LevelInfo))
}
