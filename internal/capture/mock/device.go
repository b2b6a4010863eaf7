// Package mock provides a scripted capture device for tests and offline runs.
// Each WritePosition call returns the next position from the script, so the
// recording loop can be driven through exact tick sequences.
package mock

import (
	"sync"

	"voice-command-pipeline/internal/capture"
)

// Device implements capture.Device with a scripted write head.
// Once the script is exhausted the device reports that it stopped capturing.
type Device struct {
	// Positions is the sequence of write positions returned by WritePosition.
	Positions []int
	// Channels of the buffer created by Start. Defaults to 1.
	Channels int
	// StartErr, when set, is returned by Start.
	StartErr error
	// Fill populates the buffer on Start. Defaults to sample i = i / frames.
	Fill func(samples []float32)

	mu         sync.Mutex
	buffer     *capture.CircularBuffer
	capturing  bool
	next       int
	startCalls int
	stopCalls  int
	released   bool
}

// New creates a scripted device.
func New(positions ...int) *Device {
	return &Device{Positions: positions}
}

// Start creates the buffer and begins "capturing".
func (d *Device) Start(deviceID string, loop bool, bufferSeconds, sampleRateHz int) (capture.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.startCalls++
	if d.StartErr != nil {
		return nil, d.StartErr
	}
	if d.capturing {
		return nil, capture.ErrAlreadyCapturing
	}

	channels := d.Channels
	if channels <= 0 {
		channels = 1
	}
	frames := bufferSeconds * sampleRateHz
	d.buffer = capture.NewCircularBuffer(frames, channels, sampleRateHz, loop)

	samples := make([]float32, frames*channels)
	if d.Fill != nil {
		d.Fill(samples)
	} else {
		for i := range samples {
			samples[i] = float32(i) / float32(len(samples))
		}
	}
	d.buffer.Write(samples)

	d.capturing = true
	d.released = false
	d.next = 0
	return d.buffer, nil
}

// WritePosition returns the next scripted position.
func (d *Device) WritePosition(deviceID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.next >= len(d.Positions) {
		d.capturing = false
		if len(d.Positions) == 0 {
			return 0
		}
		return d.Positions[len(d.Positions)-1]
	}
	pos := d.Positions[d.next]
	d.next++
	return pos
}

// IsCapturing reports whether the script still has positions left.
func (d *Device) IsCapturing(deviceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capturing && d.next < len(d.Positions)
}

// Stop releases the device and closes the buffer.
func (d *Device) Stop(deviceID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopCalls++
	d.capturing = false
	d.released = true
	if d.buffer != nil {
		d.buffer.Close()
	}
	return nil
}

// Disconnect simulates the hardware going away mid-session.
func (d *Device) Disconnect() {
	d.mu.Lock()
	d.capturing = false
	d.mu.Unlock()
}

// Released reports whether Stop was called since the last Start.
func (d *Device) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// StartCalls returns the number of Start calls.
func (d *Device) StartCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startCalls
}

// StopCalls returns the number of Stop calls.
func (d *Device) StopCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopCalls
}
