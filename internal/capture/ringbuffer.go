package capture

import "sync"

// CircularBuffer is a thread-safe circular buffer of interleaved float32 samples
// that exposes its write head the way a hardware capture buffer does.
type CircularBuffer struct {
	mu         sync.RWMutex
	data       []float32
	frames     int
	channels   int
	sampleRate int
	writePos   int // frames
	loop       bool
	full       bool
	closed     bool
}

// NewCircularBuffer creates a buffer holding frames frames of channels channels.
func NewCircularBuffer(frames, channels, sampleRate int, loop bool) *CircularBuffer {
	if channels <= 0 {
		channels = 1
	}
	return &CircularBuffer{
		data:       make([]float32, frames*channels),
		frames:     frames,
		channels:   channels,
		sampleRate: sampleRate,
		loop:       loop,
	}
}

// Frames returns the capacity in frames.
func (b *CircularBuffer) Frames() int { return b.frames }

// Channels returns the channel count.
func (b *CircularBuffer) Channels() int { return b.channels }

// SampleRate returns the sample rate in Hz.
func (b *CircularBuffer) SampleRate() int { return b.sampleRate }

// Write appends interleaved samples at the write head, wrapping to the start
// when looping. A non-looping buffer stops accepting data once full.
// Returns the number of frames written.
func (b *CircularBuffer) Write(samples []float32) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}
	written := 0
	for i := 0; i+b.channels <= len(samples); i += b.channels {
		if b.full {
			break
		}
		copy(b.data[b.writePos*b.channels:], samples[i:i+b.channels])
		b.writePos++
		written++
		if b.writePos == b.frames {
			if b.loop {
				b.writePos = 0
			} else {
				b.full = true
			}
		}
	}
	return written
}

// Position returns the write head in frames.
func (b *CircularBuffer) Position() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writePos
}

// GetData copies len(dst) samples starting at frame offset, wrapping around the end.
func (b *CircularBuffer) GetData(dst []float32, offset int) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrNotCapturing
	}
	if offset < 0 || offset >= b.frames || len(dst) > len(b.data) {
		return ErrOutOfRange
	}
	start := offset * b.channels
	n := copy(dst, b.data[start:])
	if n < len(dst) {
		copy(dst[n:], b.data)
	}
	return nil
}

// Close marks the buffer released; subsequent reads fail.
func (b *CircularBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Closed reports whether Close was called.
func (b *CircularBuffer) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
