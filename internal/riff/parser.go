package riff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Container is the result of walking a RIFF/WAVE stream.
type Container struct {
	Riff    RiffHeader
	Fmt     *FmtChunk
	Data    *DataChunk
	Chunks  map[FourCC]Chunk
	Order   []Chunk
	Skipped []ChunkHeader
}

// NumChannels returns the channel count from the fmt chunk.
func (c *Container) NumChannels() int {
	return int(c.Fmt.ChannelCount)
}

// SampleRate returns the sample rate in Hz.
func (c *Container) SampleRate() int {
	return int(c.Fmt.SampleRate)
}

// BitsPerSample returns the encoded sample width.
func (c *Container) BitsPerSample() int {
	return int(c.Fmt.BitsPerSample)
}

// Encoding returns the effective encoding identifier.
func (c *Container) Encoding() uint16 {
	return c.Fmt.EffectiveEncoding()
}

// NumSampleFrames derives the frame count from the declared data size.
func (c *Container) NumSampleFrames() int {
	bytesPerSample := c.BitsPerSample() / 8
	if bytesPerSample == 0 || c.NumChannels() == 0 {
		return 0
	}
	return int(c.Data.Size) / bytesPerSample / c.NumChannels()
}

// ReadData reads exactly the declared data payload from r.
func (c *Container) ReadData(r io.ReadSeeker) ([]byte, error) {
	if _, err := r.Seek(c.Data.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to data payload: %w", err)
	}
	raw := make([]byte, c.Data.Size)
	if _, err := io.ReadFull(r, raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: data payload", ErrTruncatedStream)
		}
		return nil, fmt.Errorf("read data payload: %w", err)
	}
	return raw, nil
}

// parser tracks the absolute position while walking a stream.
type parser struct {
	r   io.ReadSeeker
	pos int64
	end int64
}

// Parse walks a RIFF/WAVE stream up to and including the data chunk header.
// Unknown chunks are skipped by size; the stream is left positioned at the
// start of the data payload.
func Parse(r io.ReadSeeker) (*Container, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("locate stream start: %w", err)
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("locate stream end: %w", err)
	}
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind stream: %w", err)
	}

	p := &parser{r: r, pos: start, end: end}
	c := &Container{Chunks: make(map[FourCC]Chunk)}

	riffHdr, err := p.readRiffHeader()
	if err != nil {
		return nil, err
	}
	c.Riff = riffHdr

	for c.Data == nil {
		if p.pos >= p.end {
			break
		}
		hdr, err := p.readHeader()
		if err != nil {
			return nil, err
		}
		chunk, err := p.readChunk(hdr)
		if err != nil {
			return nil, err
		}

		switch chunk.Kind {
		case KindFmt:
			c.Fmt = chunk.Fmt
		case KindData:
			c.Data = chunk.Data
		default:
			c.Skipped = append(c.Skipped, hdr)
		}
		c.Chunks[hdr.ID] = chunk
		c.Order = append(c.Order, chunk)
	}

	if c.Fmt == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingChunk, IDFmt.String())
	}
	if c.Data == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingChunk, IDData.String())
	}

	slog.Debug("parsed RIFF container",
		"encoding", c.Fmt.EncodingID,
		"channels", c.Fmt.ChannelCount,
		"sample_rate", c.Fmt.SampleRate,
		"bits_per_sample", c.Fmt.BitsPerSample,
		"data_size", c.Data.Size,
		"skipped_chunks", len(c.Skipped))

	return c, nil
}

func (p *parser) readRiffHeader() (RiffHeader, error) {
	var buf [12]byte
	if err := p.read(buf[:]); err != nil {
		if errors.Is(err, ErrTruncatedStream) {
			return RiffHeader{}, fmt.Errorf("%w: short RIFF header", ErrInvalidFormat)
		}
		return RiffHeader{}, err
	}

	hdr := RiffHeader{
		ChunkHeader: ChunkHeader{
			ID:   FourCC(buf[0:4]),
			Size: binary.LittleEndian.Uint32(buf[4:8]),
		},
		Format: FourCC(buf[8:12]),
	}
	if hdr.ID != IDRiff {
		return RiffHeader{}, fmt.Errorf("%w: expected %q, got %q", ErrInvalidFormat, IDRiff.String(), hdr.ID.String())
	}
	if hdr.Format != IDWave {
		return RiffHeader{}, fmt.Errorf("%w: expected form %q, got %q", ErrInvalidFormat, IDWave.String(), hdr.Format.String())
	}
	return hdr, nil
}

func (p *parser) readHeader() (ChunkHeader, error) {
	var buf [headerSize]byte
	if err := p.read(buf[:]); err != nil {
		return ChunkHeader{}, err
	}
	return ChunkHeader{
		ID:   FourCC(buf[0:4]),
		Size: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// readChunk dispatches on the header id after the header has been read.
func (p *parser) readChunk(hdr ChunkHeader) (Chunk, error) {
	chunk := Chunk{Header: hdr, Offset: p.pos}

	switch hdr.ID {
	case IDFmt:
		if p.pos+int64(hdr.Size) > p.end {
			return Chunk{}, fmt.Errorf("%w: %q declares %d bytes", ErrTruncatedStream, hdr.ID.String(), hdr.Size)
		}
		f, err := p.readFmt(hdr)
		if err != nil {
			return Chunk{}, err
		}
		chunk.Kind = KindFmt
		chunk.Fmt = f

	case IDData:
		if p.pos+int64(hdr.Size) > p.end {
			return Chunk{}, fmt.Errorf("%w: %q declares %d bytes, %d remain",
				ErrTruncatedStream, hdr.ID.String(), hdr.Size, p.end-p.pos)
		}
		chunk.Kind = KindData
		chunk.Data = &DataChunk{ChunkHeader: hdr, Offset: p.pos}

	default:
		slog.Debug("skipping unknown chunk", "id", hdr.ID.String(), "size", hdr.Size)
		if err := p.skip(hdr.Padded()); err != nil {
			return Chunk{}, fmt.Errorf("skip %q: %w", hdr.ID.String(), err)
		}
	}
	return chunk, nil
}

func (p *parser) readFmt(hdr ChunkHeader) (*FmtChunk, error) {
	if hdr.Size < fmtBaseSize {
		return nil, fmt.Errorf("%w: fmt chunk is %d bytes", ErrInvalidFormat, hdr.Size)
	}

	var buf [fmtBaseSize]byte
	if err := p.read(buf[:]); err != nil {
		return nil, err
	}
	f := &FmtChunk{
		ChunkHeader:       hdr,
		EncodingID:        binary.LittleEndian.Uint16(buf[0:2]),
		ChannelCount:      binary.LittleEndian.Uint16(buf[2:4]),
		SampleRate:        binary.LittleEndian.Uint32(buf[4:8]),
		AvgBytesPerSecond: binary.LittleEndian.Uint32(buf[8:12]),
		BlockAlign:        binary.LittleEndian.Uint16(buf[12:14]),
		BitsPerSample:     binary.LittleEndian.Uint16(buf[14:16]),
	}
	consumed := int64(fmtBaseSize)

	switch {
	case f.EncodingID == EncodingExtensible && hdr.Size >= fmtExtensibleSize:
		var ext [2 + extensibleExtraSize]byte
		if err := p.read(ext[:]); err != nil {
			return nil, err
		}
		f.ExtraBytes = binary.LittleEndian.Uint16(ext[0:2])
		f.ValidBitsPerSample = binary.LittleEndian.Uint16(ext[2:4])
		f.ChannelMask = binary.LittleEndian.Uint32(ext[4:8])
		copy(f.SubFormat[:], ext[8:24])
		consumed += int64(len(ext))

	case f.EncodingID != EncodingPCM && f.EncodingID != EncodingIEEEFloat && hdr.Size >= fmtBaseSize+2:
		var ext [2]byte
		if err := p.read(ext[:]); err != nil {
			return nil, err
		}
		f.ExtraBytes = binary.LittleEndian.Uint16(ext[:])
		consumed += 2

	default:
		f.ExtraBytes = uint16(int64(hdr.Size) - consumed)
	}

	if err := p.skip(hdr.Padded() - consumed); err != nil {
		return nil, fmt.Errorf("skip fmt remainder: %w", err)
	}
	return f, nil
}

func (p *parser) read(buf []byte) error {
	n, err := io.ReadFull(p.r, buf)
	p.pos += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: wanted %d bytes at offset %d", ErrTruncatedStream, len(buf), p.pos-int64(n))
		}
		return err
	}
	return nil
}

// skip advances n bytes. A missing trailing pad byte is tolerated.
func (p *parser) skip(n int64) error {
	if n <= 0 {
		return nil
	}
	target := p.pos + n
	switch {
	case target == p.end+1:
		target = p.end
	case target > p.end:
		return fmt.Errorf("%w: %d bytes past end", ErrTruncatedStream, target-p.end)
	}
	if _, err := p.r.Seek(target, io.SeekStart); err != nil {
		return err
	}
	p.pos = target
	return nil
}
