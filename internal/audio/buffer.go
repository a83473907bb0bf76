package audio

import (
	"fmt"
	"time"
)

// Properties describes the layout of a decoded sample buffer.
type Properties struct {
	ChannelCount int
	SampleRate   int
}

// SampleBuffer holds fully decoded, interleaved, normalized samples.
// It never changes after construction, so any number of sources may share it.
type SampleBuffer struct {
	props   Properties
	samples []float32
}

// NewSampleBuffer takes ownership of samples. A trailing partial frame is dropped.
func NewSampleBuffer(props Properties, samples []float32) (*SampleBuffer, error) {
	if props.ChannelCount <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrInvalidData, props.ChannelCount)
	}
	if props.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidData, props.SampleRate)
	}
	whole := len(samples) - len(samples)%props.ChannelCount
	return &SampleBuffer{props: props, samples: samples[:whole:whole]}, nil
}

// Properties returns the buffer layout.
func (b *SampleBuffer) Properties() Properties {
	return b.props
}

// Samples exposes the interleaved samples. Callers must not modify them.
func (b *SampleBuffer) Samples() []float32 {
	return b.samples
}

func (b *SampleBuffer) NumSamples() int {
	return len(b.samples)
}

func (b *SampleBuffer) NumFrames() int {
	return len(b.samples) / b.props.ChannelCount
}

func (b *SampleBuffer) Channels() int {
	return b.props.ChannelCount
}

func (b *SampleBuffer) SampleRate() int {
	return b.props.SampleRate
}

// Duration is the playback length at the buffer's own sample rate.
func (b *SampleBuffer) Duration() time.Duration {
	return time.Duration(b.NumFrames()) * time.Second / time.Duration(b.props.SampleRate)
}
