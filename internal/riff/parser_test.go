package riff

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testChunk struct {
	id      string
	payload []byte
	size    int // overrides len(payload) when non-zero
}

// buildContainer writes a RIFF/WAVE stream from the given chunks, padding
// odd-sized payloads.
func buildContainer(form string, chunks ...testChunk) []byte {
	var body bytes.Buffer
	body.WriteString(form)
	for _, c := range chunks {
		size := len(c.payload)
		if c.size != 0 {
			size = c.size
		}
		body.WriteString(c.id)
		binary.Write(&body, binary.LittleEndian, uint32(size))
		body.Write(c.payload)
		if len(c.payload)%2 == 1 && c.size == 0 {
			body.WriteByte(0)
		}
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func fmtPayload(encoding, channels uint16, rate uint32, bits uint16) []byte {
	var buf bytes.Buffer
	blockAlign := channels * bits / 8
	binary.Write(&buf, binary.LittleEndian, encoding)
	binary.Write(&buf, binary.LittleEndian, channels)
	binary.Write(&buf, binary.LittleEndian, rate)
	binary.Write(&buf, binary.LittleEndian, rate*uint32(blockAlign))
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, bits)
	return buf.Bytes()
}

func TestParseMinimalWave(t *testing.T) {
	data := make([]byte, 200)
	stream := buildContainer("WAVE",
		testChunk{id: "fmt ", payload: fmtPayload(EncodingPCM, 1, 44100, 16)},
		testChunk{id: "data", payload: data},
	)

	c, err := Parse(bytes.NewReader(stream))
	require.NoError(t, err)

	assert.Equal(t, IDRiff, c.Riff.ID)
	assert.Equal(t, IDWave, c.Riff.Format)
	assert.Equal(t, 1, c.NumChannels())
	assert.Equal(t, 44100, c.SampleRate())
	assert.Equal(t, 16, c.BitsPerSample())
	assert.Equal(t, EncodingPCM, c.Encoding())
	assert.Equal(t, 100, c.NumSampleFrames())
	assert.Equal(t, int64(44), c.Data.Offset)
	assert.Equal(t, uint32(200), c.Data.Size)
	assert.Equal(t, uint16(0), c.Fmt.ExtraBytes)

	require.Contains(t, c.Chunks, IDFmt)
	require.Contains(t, c.Chunks, IDData)
	assert.Equal(t, KindFmt, c.Chunks[IDFmt].Kind)
	assert.Equal(t, KindData, c.Chunks[IDData].Kind)
	assert.Empty(t, c.Skipped)
}

func TestParseSkipsUnknownChunks(t *testing.T) {
	stream := buildContainer("WAVE",
		testChunk{id: "LIST", payload: []byte("INFOISFTstemdeck")},
		testChunk{id: "fmt ", payload: fmtPayload(EncodingPCM, 2, 48000, 16)},
		testChunk{id: "junk", payload: []byte{1, 2, 3}}, // odd size, padded
		testChunk{id: "data", payload: make([]byte, 8)},
	)

	c, err := Parse(bytes.NewReader(stream))
	require.NoError(t, err)

	require.Len(t, c.Skipped, 2)
	assert.Equal(t, "LIST", c.Skipped[0].ID.String())
	assert.Equal(t, "junk", c.Skipped[1].ID.String())
	assert.Equal(t, uint32(3), c.Skipped[1].Size)
	assert.Equal(t, 2, c.NumSampleFrames())

	raw, err := c.ReadData(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Len(t, raw, 8)
}

func TestParseStopsAtData(t *testing.T) {
	stream := buildContainer("WAVE",
		testChunk{id: "fmt ", payload: fmtPayload(EncodingPCM, 1, 8000, 8)},
		testChunk{id: "data", payload: []byte{128, 128}},
		testChunk{id: "smpl", payload: make([]byte, 36)},
	)

	c, err := Parse(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.NotContains(t, c.Chunks, FourCC{'s', 'm', 'p', 'l'})
	assert.Len(t, c.Order, 2)
}

func TestParseLeavesReaderAtPayload(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	stream := buildContainer("WAVE",
		testChunk{id: "fmt ", payload: fmtPayload(EncodingPCM, 1, 8000, 16)},
		testChunk{id: "data", payload: payload},
	)

	r := bytes.NewReader(stream)
	_, err := Parse(r)
	require.NoError(t, err)

	next := make([]byte, 4)
	_, err = r.Read(next)
	require.NoError(t, err)
	assert.Equal(t, payload, next)
}

func TestParseErrors(t *testing.T) {
	fmtPCM := fmtPayload(EncodingPCM, 1, 44100, 16)

	tests := []struct {
		name    string
		stream  []byte
		wantErr error
	}{
		{
			name:    "not RIFF",
			stream:  append([]byte("RIFX\x04\x00\x00\x00"), []byte("WAVE")...),
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "not WAVE",
			stream:  buildContainer("AVI ", testChunk{id: "fmt ", payload: fmtPCM}),
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "short header",
			stream:  []byte("RIFF"),
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "missing fmt",
			stream:  buildContainer("WAVE", testChunk{id: "data", payload: make([]byte, 4)}),
			wantErr: ErrMissingChunk,
		},
		{
			name:    "missing data",
			stream:  buildContainer("WAVE", testChunk{id: "fmt ", payload: fmtPCM}),
			wantErr: ErrMissingChunk,
		},
		{
			name: "truncated data",
			stream: buildContainer("WAVE",
				testChunk{id: "fmt ", payload: fmtPCM},
				testChunk{id: "data", payload: make([]byte, 10), size: 1000},
			),
			wantErr: ErrTruncatedStream,
		},
		{
			name: "truncated unknown chunk",
			stream: buildContainer("WAVE",
				testChunk{id: "fmt ", payload: fmtPCM},
				testChunk{id: "bext", payload: make([]byte, 4), size: 4096},
			),
			wantErr: ErrTruncatedStream,
		},
		{
			name: "short fmt",
			stream: buildContainer("WAVE",
				testChunk{id: "fmt ", payload: fmtPCM[:12]},
				testChunk{id: "data", payload: make([]byte, 4)},
			),
			wantErr: ErrInvalidFormat,
		},
		{
			name: "header cut short",
			stream: append(buildContainer("WAVE",
				testChunk{id: "fmt ", payload: fmtPCM},
			), 'd', 'a', 't'),
			wantErr: ErrTruncatedStream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(bytes.NewReader(tt.stream))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseNonLinearReadsExtraBytes(t *testing.T) {
	payload := append(fmtPayload(99, 1, 8000, 4), 0x02, 0x00, 0xAA, 0xBB)
	stream := buildContainer("WAVE",
		testChunk{id: "fmt ", payload: payload},
		testChunk{id: "data", payload: make([]byte, 4)},
	)

	c, err := Parse(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, uint16(99), c.Fmt.EncodingID)
	assert.Equal(t, uint16(2), c.Fmt.ExtraBytes)
	assert.False(t, c.Fmt.IsLinear())
}

func TestParseExtensible(t *testing.T) {
	payload := fmtPayload(EncodingExtensible, 2, 48000, 24)
	ext := make([]byte, 24)
	binary.LittleEndian.PutUint16(ext[0:2], 22)
	binary.LittleEndian.PutUint16(ext[2:4], 24)
	binary.LittleEndian.PutUint32(ext[4:8], 0x3)
	// KSDATAFORMAT_SUBTYPE_PCM
	copy(ext[8:], []byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71})
	payload = append(payload, ext...)

	stream := buildContainer("WAVE",
		testChunk{id: "fmt ", payload: payload},
		testChunk{id: "data", payload: make([]byte, 12)},
	)

	c, err := Parse(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, EncodingExtensible, c.Fmt.EncodingID)
	assert.Equal(t, EncodingPCM, c.Fmt.EffectiveEncoding())
	assert.Equal(t, uint16(24), c.Fmt.ValidBitsPerSample)
	assert.Equal(t, uint32(3), c.Fmt.ChannelMask)
	assert.Equal(t, 2, c.NumSampleFrames())
}

func TestFmtNormalizeAndValidate(t *testing.T) {
	f := &FmtChunk{EncodingID: EncodingPCM, ChannelCount: 2, SampleRate: 44100, BitsPerSample: 16, BlockAlign: 3}
	require.NoError(t, f.Validate())
	assert.True(t, f.Normalize())
	assert.Equal(t, uint16(4), f.BlockAlign)
	assert.Equal(t, uint32(176400), f.AvgBytesPerSecond)
	assert.False(t, f.Normalize())

	bad := &FmtChunk{EncodingID: EncodingPCM, ChannelCount: 0, SampleRate: 44100, BitsPerSample: 16}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidFormat)
}

func TestEncodingName(t *testing.T) {
	assert.Equal(t, "PCM", EncodingName(EncodingPCM))
	assert.Equal(t, "IEEE float", EncodingName(EncodingIEEEFloat))
	assert.Equal(t, "0x0055", EncodingName(0x55))
}
