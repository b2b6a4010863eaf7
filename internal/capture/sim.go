package capture

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// SimDevice is a software capture device that writes a generated signal into
// its circular buffer in real time. It stands in for a microphone on hosts
// without audio hardware.
type SimDevice struct {
	// ToneHz is the frequency of the generated sine. Zero produces silence.
	ToneHz float64
	// Amplitude of the generated signal in [0, 1].
	Amplitude float64
	// Tick is the period at which samples are pushed into the buffer.
	Tick time.Duration

	mu      sync.Mutex
	running map[string]*simCapture
}

type simCapture struct {
	buffer *CircularBuffer
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSimDevice creates a simulated device producing a tone.
func NewSimDevice(toneHz, amplitude float64) *SimDevice {
	return &SimDevice{
		ToneHz:    toneHz,
		Amplitude: amplitude,
		Tick:      10 * time.Millisecond,
		running:   make(map[string]*simCapture),
	}
}

// Start begins generating samples for deviceID.
func (d *SimDevice) Start(deviceID string, loop bool, bufferSeconds, sampleRateHz int) (Buffer, error) {
	if bufferSeconds <= 0 || sampleRateHz <= 0 {
		return nil, fmt.Errorf("invalid capture parameters: %ds at %dHz", bufferSeconds, sampleRateHz)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running == nil {
		d.running = make(map[string]*simCapture)
	}
	if _, ok := d.running[deviceID]; ok {
		return nil, ErrAlreadyCapturing
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &simCapture{
		buffer: NewCircularBuffer(bufferSeconds*sampleRateHz, 1, sampleRateHz, loop),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	d.running[deviceID] = c
	go d.generate(ctx, c)

	return c.buffer, nil
}

func (d *SimDevice) generate(ctx context.Context, c *simCapture) {
	defer close(c.done)

	tick := d.Tick
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	rate := c.buffer.SampleRate()
	start := time.Now()
	produced := 0
	phaseStep := 2 * math.Pi * d.ToneHz / float64(rate)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due := int(now.Sub(start).Seconds() * float64(rate))
			if due <= produced {
				continue
			}
			block := make([]float32, due-produced)
			for i := range block {
				block[i] = float32(d.Amplitude * math.Sin(phaseStep*float64(produced+i)))
			}
			produced = due
			c.buffer.Write(block)
		}
	}
}

// WritePosition returns the write head for deviceID, or 0 when idle.
func (d *SimDevice) WritePosition(deviceID string) int {
	d.mu.Lock()
	c, ok := d.running[deviceID]
	d.mu.Unlock()
	if !ok {
		return 0
	}
	return c.buffer.Position()
}

// IsCapturing reports whether deviceID is generating samples.
func (d *SimDevice) IsCapturing(deviceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.running[deviceID]
	return ok
}

// Stop halts generation and closes the buffer.
func (d *SimDevice) Stop(deviceID string) error {
	d.mu.Lock()
	c, ok := d.running[deviceID]
	delete(d.running, deviceID)
	d.mu.Unlock()

	if !ok {
		return nil
	}
	c.cancel()
	<-c.done
	c.buffer.Close()
	return nil
}
