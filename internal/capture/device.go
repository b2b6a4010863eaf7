// Package capture defines the contract of an audio capture device that records
// into a fixed-size, continuously overwritten circular buffer, along with an
// in-memory CircularBuffer that device implementations can record into.
package capture

import "errors"

var (
	// ErrNotCapturing is returned when reading from a device that is not capturing.
	ErrNotCapturing = errors.New("device is not capturing")

	// ErrAlreadyCapturing is returned when starting a device that is already capturing.
	ErrAlreadyCapturing = errors.New("device is already capturing")

	// ErrOutOfRange is returned when a read falls outside the buffer.
	ErrOutOfRange = errors.New("read out of buffer range")
)

// Buffer is the handle to a device's circular sample buffer.
//
// Positions and offsets are expressed in frames (one sample per channel).
// Sample data is interleaved when Channels > 1.
type Buffer interface {
	// Frames returns the buffer capacity in frames.
	Frames() int

	// Channels returns the number of interleaved channels.
	Channels() int

	// SampleRate returns the capture rate in Hz.
	SampleRate() int

	// GetData copies len(dst) interleaved samples starting at frame offset
	// into dst. It fails with ErrNotCapturing once the device was stopped.
	GetData(dst []float32, offset int) error
}

// Device is a microphone-like capture device addressed by identifier.
// Implementations must be safe for concurrent use.
type Device interface {
	// Start begins capturing into a circular buffer of bufferSeconds length.
	// loop=false stops capture once the buffer is full.
	Start(deviceID string, loop bool, bufferSeconds, sampleRateHz int) (Buffer, error)

	// WritePosition returns the current write head in frames.
	WritePosition(deviceID string) int

	// IsCapturing reports whether the device is still recording.
	IsCapturing(deviceID string) bool

	// Stop halts capture and releases the device. Stopping an idle device is a no-op.
	Stop(deviceID string) error
}
