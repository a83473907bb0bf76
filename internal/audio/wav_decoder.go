package audio

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"stemdeck.click/internal/pcm"
	"stemdeck.click/internal/riff"
)

// WavDecoder decodes RIFF/WAVE linear PCM and IEEE float files
type WavDecoder struct{}

// NewWavDecoder creates a new WAV decoder instance
func NewWavDecoder() *WavDecoder {
	return &WavDecoder{}
}

// FormatName returns the name of the format this decoder handles
func (d *WavDecoder) FormatName() string {
	return "WAV"
}

// CanDecode checks the file extension
func (d *WavDecoder) CanDecode(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".wav" || ext == ".wave"
}

// Decode parses the container, then converts the data chunk to float samples.
// Nothing is returned on failure.
func (d *WavDecoder) Decode(r io.ReadSeeker) (*SampleBuffer, error) {
	container, err := riff.Parse(r)
	if err != nil {
		slog.Debug("WAV container rejected", "error", err)
		return nil, err
	}

	f := container.Fmt
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if !pcm.Supported(f) {
		return nil, fmt.Errorf("%w: encoding %#04x with %d bits per sample",
			pcm.ErrUnsupportedEncoding, f.EncodingID, f.BitsPerSample)
	}

	declared := f.BlockAlign
	if f.Normalize() {
		slog.Warn("WAV fmt chunk has inconsistent block alignment, normalized",
			"declared_block_align", declared,
			"block_align", f.BlockAlign)
	}

	raw, err := container.ReadData(r)
	if err != nil {
		return nil, err
	}

	samples, err := pcm.DecodeToFloat(f, raw)
	if err != nil {
		return nil, err
	}

	buf, err := NewSampleBuffer(Properties{
		ChannelCount: int(f.ChannelCount),
		SampleRate:   int(f.SampleRate),
	}, samples)
	if err != nil {
		return nil, err
	}

	slog.Debug("WAV decode completed",
		"channels", buf.Channels(),
		"sample_rate", buf.SampleRate(),
		"bits_per_sample", f.BitsPerSample,
		"frames", buf.NumFrames())

	return buf, nil
}
