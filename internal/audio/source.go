package audio

import (
	"math"
	"sync"
	"sync/atomic"
)

// Source is anything the player can mix into an output buffer.
type Source interface {
	// Mix adds up to frames frames into out. It must not allocate or block.
	Mix(out []float32, outChannels, frames int)
	SetPlayMode()
	SetStopMode()
	IsPlaying() bool
}

type atomicFloat32 struct {
	bits atomic.Uint32
}

func (f *atomicFloat32) Load() float32 {
	return math.Float32frombits(f.bits.Load())
}

func (f *atomicFloat32) Store(v float32) {
	f.bits.Store(math.Float32bits(v))
}

// FileSource plays a decoded SampleBuffer once from a cursor.
//
// Every field touched by Mix is atomic: the render callback and control
// calls run on different goroutines. Consistent multi-source cursor changes
// are the caller's job (stop the stream first).
type FileSource struct {
	buffer *SampleBuffer
	panLaw PanLaw

	// serializes gain/pan writers so left/right match the last pair stored
	control sync.Mutex

	cursor  atomic.Int64
	playing atomic.Bool

	gain      atomicFloat32
	pan       atomicFloat32
	left      atomicFloat32
	right     atomicFloat32
	amplitude atomicFloat32
}

// NewFileSource wraps buf at unity gain, centred, stopped.
func NewFileSource(buf *SampleBuffer, law PanLaw) *FileSource {
	if law == nil {
		law = PanBalance
	}
	s := &FileSource{buffer: buf, panLaw: law}
	s.gain.Store(1)
	s.updateFactors()
	return s
}

// Buffer returns the shared sample buffer.
func (s *FileSource) Buffer() *SampleBuffer {
	return s.buffer
}

// SetPlayMode rewinds and starts playback.
func (s *FileSource) SetPlayMode() {
	s.cursor.Store(0)
	s.playing.Store(true)
}

// SetStopMode stops playback and rewinds.
func (s *FileSource) SetStopMode() {
	s.playing.Store(false)
	s.cursor.Store(0)
	s.amplitude.Store(0)
}

func (s *FileSource) IsPlaying() bool {
	return s.playing.Load()
}

// Cursor is the interleaved sample index of the next sample to mix.
func (s *FileSource) Cursor() int {
	return int(s.cursor.Load())
}

// Position reports the cursor as a fraction of the buffer.
func (s *FileSource) Position() float32 {
	total := s.buffer.NumSamples()
	if total == 0 {
		return 0
	}
	return float32(float64(s.cursor.Load()) / float64(total))
}

// SetPosition moves the cursor to fraction of the buffer, clamped to [0, 1]
// and aligned down to a frame boundary. The playing flag is left alone.
func (s *FileSource) SetPosition(fraction float32) {
	if fraction < 0 || math.IsNaN(float64(fraction)) {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	total := s.buffer.NumSamples()
	channels := s.buffer.Channels()
	cursor := int(float64(fraction) * float64(total))
	cursor -= cursor % channels
	s.cursor.Store(int64(cursor))
}

func (s *FileSource) Gain() float32 {
	return s.gain.Load()
}

// SetGain sets the linear amplitude factor. Negative values are treated as 0.
func (s *FileSource) SetGain(gain float32) {
	if gain < 0 || math.IsNaN(float64(gain)) {
		gain = 0
	}
	s.control.Lock()
	defer s.control.Unlock()
	s.gain.Store(gain)
	s.updateFactors()
}

func (s *FileSource) Pan() float32 {
	return s.pan.Load()
}

// SetPan sets the stereo position, clamped to [-1, 1].
func (s *FileSource) SetPan(pan float32) {
	if math.IsNaN(float64(pan)) {
		pan = 0
	}
	s.control.Lock()
	defer s.control.Unlock()
	s.pan.Store(clampPan(pan))
	s.updateFactors()
}

// Amplitude is the peak absolute level written by the last Mix call.
func (s *FileSource) Amplitude() float32 {
	return s.amplitude.Load()
}

func (s *FileSource) updateFactors() {
	gain := s.gain.Load()
	left, right := s.panLaw(s.pan.Load())
	s.left.Store(left * gain)
	s.right.Store(right * gain)
}

// Mix adds this source into out. Mono output ignores pan; stereo output
// applies the pan law. A stereo source mixed to mono is summed, not averaged.
func (s *FileSource) Mix(out []float32, outChannels, frames int) {
	if !s.playing.Load() || outChannels <= 0 || frames <= 0 {
		return
	}

	samples := s.buffer.samples
	srcChannels := s.buffer.props.ChannelCount
	total := len(samples)
	cursor := int(s.cursor.Load())

	n := 0
	if cursor < total {
		n = (total - cursor) / srcChannels
	}
	if n > frames {
		n = frames
	}
	if limit := len(out) / outChannels; n > limit {
		n = limit
	}

	gain := s.gain.Load()
	left := s.left.Load()
	right := s.right.Load()
	var peak float32

	switch {
	case srcChannels == 1 && outChannels == 1:
		src := samples[cursor : cursor+n]
		for i, v := range src {
			v *= gain
			out[i] += v
			peak = maxAbs(peak, v)
		}
		cursor += n

	case srcChannels == 1 && outChannels == 2:
		src := samples[cursor : cursor+n]
		for i, v := range src {
			l, r := v*left, v*right
			out[2*i] += l
			out[2*i+1] += r
			peak = maxAbs(maxAbs(peak, l), r)
		}
		cursor += n

	case srcChannels == 2 && outChannels == 1:
		src := samples[cursor : cursor+2*n]
		for i := 0; i < n; i++ {
			v := (src[2*i] + src[2*i+1]) * gain
			out[i] += v
			peak = maxAbs(peak, v)
		}
		cursor += 2 * n

	case srcChannels == 2 && outChannels == 2:
		src := samples[cursor : cursor+2*n]
		for i := 0; i < n; i++ {
			l, r := src[2*i]*left, src[2*i+1]*right
			out[2*i] += l
			out[2*i+1] += r
			peak = maxAbs(maxAbs(peak, l), r)
		}
		cursor += 2 * n

	default:
		// channel k to channel k, extra output channels stay silent
		shared := min(srcChannels, outChannels)
		for i := 0; i < n; i++ {
			src := samples[cursor+i*srcChannels:]
			dst := out[i*outChannels:]
			for k := 0; k < shared; k++ {
				v := src[k] * gain
				dst[k] += v
				peak = maxAbs(peak, v)
			}
		}
		cursor += n * srcChannels
	}

	s.cursor.Store(int64(cursor))
	s.amplitude.Store(peak)
	if total-cursor < srcChannels {
		s.playing.Store(false)
	}
}

func maxAbs(peak, v float32) float32 {
	if v < 0 {
		v = -v
	}
	if v > peak {
		return v
	}
	return peak
}
