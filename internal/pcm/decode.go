// Package pcm converts encoded WAVE sample payloads to normalized float32.
package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"stemdeck.click/internal/riff"
)

// ErrUnsupportedEncoding is returned for encodings or bit depths with no converter.
var ErrUnsupportedEncoding = errors.New("unsupported sample encoding")

const (
	scale8  = 128.0
	scale16 = 32768.0
	scale24 = 8388608.0
	scale32 = 2147483648.0
)

type converterKey struct {
	encoding uint16
	bits     uint16
}

// converter decodes one sample from b, which is exactly one sample wide.
type converter func(b []byte) float32

var converters = map[converterKey]converter{
	{riff.EncodingPCM, 8}:        decode8,
	{riff.EncodingPCM, 16}:       decode16,
	{riff.EncodingPCM, 24}:       decode24,
	{riff.EncodingPCM, 32}:       decode32,
	{riff.EncodingIEEEFloat, 32}: decodeFloat32,
}

func decode8(b []byte) float32 {
	return (float32(b[0]) - 128) / scale8
}

func decode16(b []byte) float32 {
	return float32(int16(binary.LittleEndian.Uint16(b))) / scale16
}

func decode24(b []byte) float32 {
	v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
	if v&0x800000 != 0 {
		v |= ^0xFFFFFF
	}
	return float32(v) / scale24
}

func decode32(b []byte) float32 {
	return float32(float64(int32(binary.LittleEndian.Uint32(b))) / scale32)
}

func decodeFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// Supported reports whether a converter exists for the format.
func Supported(f *riff.FmtChunk) bool {
	_, ok := converters[converterKey{f.EffectiveEncoding(), f.BitsPerSample}]
	return ok
}

// DecodeToFloat converts raw interleaved samples described by f. Bytes that do
// not form a whole frame at the end of raw are dropped.
func DecodeToFloat(f *riff.FmtChunk, raw []byte) ([]float32, error) {
	conv, ok := converters[converterKey{f.EffectiveEncoding(), f.BitsPerSample}]
	if !ok {
		return nil, fmt.Errorf("%w: encoding %#04x with %d bits per sample",
			ErrUnsupportedEncoding, f.EncodingID, f.BitsPerSample)
	}

	width := int(f.BitsPerSample / 8)
	frameSize := width * int(f.ChannelCount)
	if frameSize == 0 {
		return nil, fmt.Errorf("%w: zero frame size", riff.ErrInvalidFormat)
	}

	usable := len(raw) - len(raw)%frameSize
	out := make([]float32, usable/width)
	for i := range out {
		off := i * width
		out[i] = conv(raw[off : off+width])
	}
	return out, nil
}
