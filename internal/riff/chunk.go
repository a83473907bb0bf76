// Package riff parses RIFF/WAVE containers into typed chunks.
package riff

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Container errors
var (
	ErrInvalidFormat   = errors.New("invalid RIFF/WAVE container")
	ErrMissingChunk    = errors.New("required chunk missing")
	ErrTruncatedStream = errors.New("chunk extends past end of stream")
)

// FourCC is a four character chunk identifier.
type FourCC [4]byte

func (f FourCC) String() string {
	return string(f[:])
}

// Known chunk identifiers
var (
	IDRiff = FourCC{'R', 'I', 'F', 'F'}
	IDWave = FourCC{'W', 'A', 'V', 'E'}
	IDFmt  = FourCC{'f', 'm', 't', ' '}
	IDData = FourCC{'d', 'a', 't', 'a'}
)

// Encoding identifiers carried in the fmt chunk
const (
	EncodingPCM        uint16 = 0x0001
	EncodingADPCM      uint16 = 0x0002
	EncodingIEEEFloat  uint16 = 0x0003
	EncodingExtensible uint16 = 0xFFFE
)

// EncodingName returns a display name for an encoding identifier
func EncodingName(id uint16) string {
	switch id {
	case EncodingPCM:
		return "PCM"
	case EncodingADPCM:
		return "ADPCM"
	case EncodingIEEEFloat:
		return "IEEE float"
	case EncodingExtensible:
		return "extensible"
	default:
		return fmt.Sprintf("0x%04X", id)
	}
}

const (
	headerSize          = 8
	fmtBaseSize         = 16
	fmtExtensibleSize   = 40
	extensibleExtraSize = 22
)

// ChunkKind discriminates the payload carried by a Chunk.
type ChunkKind int

const (
	KindUnknown ChunkKind = iota
	KindFmt
	KindData
)

func (k ChunkKind) String() string {
	switch k {
	case KindFmt:
		return "fmt"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// ChunkHeader is the (id, size) pair preceding every chunk payload.
// Size excludes the header itself and any pad byte.
type ChunkHeader struct {
	ID   FourCC
	Size uint32
}

// Padded reports the payload size rounded up to an even byte count.
func (h ChunkHeader) Padded() int64 {
	return int64(h.Size) + int64(h.Size&1)
}

// RiffHeader is the leading RIFF chunk with its form type.
type RiffHeader struct {
	ChunkHeader
	Format FourCC
}

// FmtChunk describes how the data chunk samples are encoded.
type FmtChunk struct {
	ChunkHeader
	EncodingID        uint16
	ChannelCount      uint16
	SampleRate        uint32
	AvgBytesPerSecond uint32
	BlockAlign        uint16
	BitsPerSample     uint16
	ExtraBytes        uint16

	// Populated for WAVE_FORMAT_EXTENSIBLE only
	ValidBitsPerSample uint16
	ChannelMask        uint32
	SubFormat          [16]byte
}

// EffectiveEncoding resolves the extensible sub-format to its base encoding.
func (f *FmtChunk) EffectiveEncoding() uint16 {
	if f.EncodingID == EncodingExtensible {
		return binary.LittleEndian.Uint16(f.SubFormat[:2])
	}
	return f.EncodingID
}

// IsLinear reports whether samples are integer PCM or IEEE float.
func (f *FmtChunk) IsLinear() bool {
	enc := f.EffectiveEncoding()
	return enc == EncodingPCM || enc == EncodingIEEEFloat
}

// FrameSize is the byte width of one interleaved frame.
func (f *FmtChunk) FrameSize() int {
	return int(f.ChannelCount) * int(f.BitsPerSample/8)
}

// Validate rejects formats that cannot describe any audio.
func (f *FmtChunk) Validate() error {
	if f.ChannelCount == 0 {
		return fmt.Errorf("%w: zero channels", ErrInvalidFormat)
	}
	if f.SampleRate == 0 {
		return fmt.Errorf("%w: zero sample rate", ErrInvalidFormat)
	}
	if f.BitsPerSample == 0 {
		return fmt.Errorf("%w: zero bits per sample", ErrInvalidFormat)
	}
	return nil
}

// Normalize re-derives BlockAlign and AvgBytesPerSecond for linear
// encodings. It reports whether anything changed.
func (f *FmtChunk) Normalize() bool {
	if !f.IsLinear() {
		return false
	}
	blockAlign := uint16(f.FrameSize())
	avg := f.SampleRate * uint32(blockAlign)
	changed := blockAlign != f.BlockAlign || avg != f.AvgBytesPerSecond
	f.BlockAlign = blockAlign
	f.AvgBytesPerSecond = avg
	return changed
}

// DataChunk locates the raw sample payload within the stream.
type DataChunk struct {
	ChunkHeader
	Offset int64
}

// Chunk is a parsed chunk. Kind selects which payload field is set.
type Chunk struct {
	Kind   ChunkKind
	Header ChunkHeader
	Offset int64
	Fmt    *FmtChunk
	Data   *DataChunk
}
