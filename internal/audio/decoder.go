package audio

import (
	"errors"
	"io"
)

// Common decoder errors
var (
	ErrInvalidData       = errors.New("invalid audio data")
	ErrReadFailure       = errors.New("failed to read audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Decoder turns an encoded container into a SampleBuffer
type Decoder interface {
	// Decode parses the whole stream and returns normalized samples
	Decode(r io.ReadSeeker) (*SampleBuffer, error)

	// CanDecode checks if this decoder can handle the given filename
	CanDecode(filename string) bool

	// FormatName returns the name of the format this decoder handles
	FormatName() string
}
