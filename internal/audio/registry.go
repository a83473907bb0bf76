package audio

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DecoderRegistry manages audio format decoders and provides format detection
type DecoderRegistry struct {
	decoders []Decoder
}

// NewDecoderRegistry creates a new empty decoder registry
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{
		decoders: make([]Decoder, 0),
	}
}

// NewDefaultRegistry creates a registry with the WAV and AIFF decoders
func NewDefaultRegistry() *DecoderRegistry {
	registry := NewDecoderRegistry()
	registry.Register(NewWavDecoder())
	registry.Register(NewAiffDecoder())

	slog.Debug("default decoder registry initialized",
		"supported_formats", registry.GetSupportedFormats())

	return registry
}

// Register adds a decoder to the registry
func (r *DecoderRegistry) Register(decoder Decoder) {
	if decoder == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}
	r.decoders = append(r.decoders, decoder)
}

// GetSupportedFormats returns a list of all supported format names
func (r *DecoderRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(r.decoders))
	for _, decoder := range r.decoders {
		formats = append(formats, decoder.FormatName())
	}
	return formats
}

// DetectFormat detects the appropriate decoder based on filename extension only
func (r *DecoderRegistry) DetectFormat(filename string) Decoder {
	if filename == "" {
		return nil
	}

	// first registered has priority
	for _, decoder := range r.decoders {
		if decoder.CanDecode(filename) {
			return decoder
		}
	}

	slog.Debug("no decoder found for filename", "filename", filename)
	return nil
}

// DetectFormatWithContent detects format using magic bytes first, fallback to extension
func (r *DecoderRegistry) DetectFormatWithContent(filename string, header []byte) Decoder {
	if len(header) == 0 {
		return r.DetectFormat(filename)
	}

	mtype := mimetype.Detect(header)
	mimeStr := strings.ToLower(mtype.String())

	var formatDecoder Decoder
	switch {
	case strings.Contains(mimeStr, "wav") || mimeStr == "audio/vnd.wave":
		formatDecoder = r.findDecoderByFormat("WAV")
	case strings.Contains(mimeStr, "aiff"):
		formatDecoder = r.findDecoderByFormat("AIFF")
	}

	slog.Debug("magic byte detection result",
		"filename", filename,
		"detected_mime", mtype.String(),
		"bytes_analyzed", len(header))

	if formatDecoder != nil {
		return formatDecoder
	}

	return r.DetectFormat(filename)
}

// findDecoderByFormat finds a decoder by its format name
func (r *DecoderRegistry) findDecoderByFormat(formatName string) Decoder {
	for _, decoder := range r.decoders {
		if strings.EqualFold(decoder.FormatName(), formatName) {
			return decoder
		}
	}
	return nil
}

// DecodeFile picks a decoder from content and name, then decodes the whole
// stream. The decoder's format name is returned alongside the buffer.
func (r *DecoderRegistry) DecodeFile(filename string, reader io.Reader) (*SampleBuffer, string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	return r.DecodeBytes(filename, content)
}

// DecodeBytes is DecodeFile for content already in memory.
func (r *DecoderRegistry) DecodeBytes(filename string, content []byte) (*SampleBuffer, string, error) {
	header := content
	if len(header) > 512 {
		header = header[:512]
	}

	decoder := r.DetectFormatWithContent(filename, header)
	if decoder == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	buf, err := decoder.Decode(bytes.NewReader(content))
	if err != nil {
		slog.Error("decode operation failed",
			"filename", filename,
			"decoder_format", decoder.FormatName(),
			"error", err)
		return nil, decoder.FormatName(), err
	}

	slog.Info("file decode completed successfully",
		"filename", filename,
		"decoder_format", decoder.FormatName(),
		"channels", buf.Channels(),
		"sample_rate", buf.SampleRate(),
		"frames", buf.NumFrames())

	return buf, decoder.FormatName(), nil
}
