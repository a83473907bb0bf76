package audio

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
)

// AiffDecoder handles AIFF audio format decoding
type AiffDecoder struct{}

// NewAiffDecoder creates a new AIFF decoder instance
func NewAiffDecoder() *AiffDecoder {
	return &AiffDecoder{}
}

// FormatName returns the name of the format this decoder handles
func (d *AiffDecoder) FormatName() string {
	return "AIFF"
}

// CanDecode checks if this decoder can handle the given filename
func (d *AiffDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".aiff") || strings.HasSuffix(lower, ".aif")
}

// Decode reads big-endian AIFF samples and normalizes them by bit depth
func (d *AiffDecoder) Decode(r io.ReadSeeker) (*SampleBuffer, error) {
	decoder := aiff.NewDecoder(r)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		slog.Debug("invalid AIFF file format")
		return nil, fmt.Errorf("%w: not an AIFF stream", ErrInvalidData)
	}

	sampleRate := decoder.SampleRate
	channels := int(decoder.NumChans)
	bitDepth := int(decoder.SampleBitDepth())

	slog.Debug("AIFF format detected",
		"sample_rate", sampleRate,
		"channels", channels,
		"bits_per_sample", bitDepth)

	if channels == 0 || sampleRate == 0 || bitDepth == 0 {
		return nil, fmt.Errorf("%w: channels=%d sample_rate=%d bits=%d",
			ErrInvalidData, channels, sampleRate, bitDepth)
	}

	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: AIFF bit depth %d", ErrUnsupportedFormat, bitDepth)
	}

	pcmBuffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	if pcmBuffer == nil || len(pcmBuffer.Data) == 0 {
		return nil, fmt.Errorf("%w: no sound data", ErrInvalidData)
	}

	buf, err := NewSampleBuffer(Properties{
		ChannelCount: channels,
		SampleRate:   sampleRate,
	}, normalizeIntBuffer(pcmBuffer, bitDepth))
	if err != nil {
		return nil, err
	}

	slog.Debug("AIFF decode completed",
		"channels", buf.Channels(),
		"sample_rate", buf.SampleRate(),
		"frames", buf.NumFrames())

	return buf, nil
}

// normalizeIntBuffer scales signed integer samples into [-1, 1). go-audio/aiff
// hands 8-bit samples back as raw bytes, so they are reinterpreted as int8.
func normalizeIntBuffer(pcmBuffer *audio.IntBuffer, bitDepth int) []float32 {
	scale := float64(int64(1) << (bitDepth - 1))
	out := make([]float32, len(pcmBuffer.Data))
	for i, v := range pcmBuffer.Data {
		if bitDepth == 8 {
			v = int(int8(uint8(v)))
		}
		out[i] = float32(float64(v) / scale)
	}
	return out
}
