package player

import (
	"github.com/gopxl/beep"
)

// Streamer pulls the mix through RenderCallback without an output device,
// so the player can feed beep for offline rendering. Mono mixes are copied
// to both beep channels.
type Streamer struct {
	mp       *MultiPlayer
	channels int
	scratch  []float32
}

var _ beep.Streamer = (*Streamer)(nil)

// NewStreamer renders mp with channels output channels (1 or 2).
func NewStreamer(mp *MultiPlayer, channels int) *Streamer {
	return &Streamer{mp: mp, channels: channels}
}

// Stream fills samples with the next block of the mix. It is drained once
// every track has finished.
func (s *Streamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.mp.Finished() {
		return 0, false
	}

	frames := len(samples)
	need := frames * s.channels
	if cap(s.scratch) < need {
		s.scratch = make([]float32, need)
	}
	buf := s.scratch[:need]
	clear(buf)

	s.mp.RenderCallback(buf, s.channels, frames)

	for i := range samples {
		if s.channels == 1 {
			v := float64(buf[i])
			samples[i] = [2]float64{v, v}
			continue
		}
		samples[i] = [2]float64{float64(buf[2*i]), float64(buf[2*i+1])}
	}
	return frames, true
}

// Err always returns nil; rendering cannot fail.
func (s *Streamer) Err() error {
	return nil
}
