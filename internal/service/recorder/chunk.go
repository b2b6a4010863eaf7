// Package recorder turns a continuously overwritten capture buffer into an
// ordered stream of half-buffer audio chunks with no gaps and no duplicates.
package recorder

import (
	"slices"
	"time"
)

// AudioChunk is an immutable block of captured samples.
type AudioChunk struct {
	samples    []float32
	sampleRate int
	channels   int
	peak       float32
}

// NewAudioChunk copies samples into a new chunk and caches its peak amplitude.
func NewAudioChunk(samples []float32, sampleRate, channels int) AudioChunk {
	if channels <= 0 {
		channels = 1
	}
	return AudioChunk{
		samples:    slices.Clone(samples),
		sampleRate: sampleRate,
		channels:   channels,
		peak:       Peak(samples),
	}
}

// Samples returns a copy of the interleaved samples.
func (c AudioChunk) Samples() []float32 { return slices.Clone(c.samples) }

// Len returns the number of samples across all channels.
func (c AudioChunk) Len() int { return len(c.samples) }

// SampleRate returns the sample rate in Hz.
func (c AudioChunk) SampleRate() int { return c.sampleRate }

// Channels returns the channel count.
func (c AudioChunk) Channels() int { return c.channels }

// Peak returns the cached peak amplitude.
func (c AudioChunk) Peak() float32 { return c.peak }

// IsEmpty reports whether the chunk carries no samples.
func (c AudioChunk) IsEmpty() bool { return len(c.samples) == 0 }

// Duration returns the playback length of the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.sampleRate <= 0 {
		return 0
	}
	frames := len(c.samples) / c.channels
	return time.Duration(frames) * time.Second / time.Duration(c.sampleRate)
}

// Peak returns max(|min(samples)|, max(samples)). Empty input yields 0.
func Peak(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	lo, hi := samples[0], samples[0]
	for _, s := range samples[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	if -lo > hi {
		return -lo
	}
	return hi
}
