package recorder

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeviceDisconnected is returned when the capture device is lost mid-session.
	ErrDeviceDisconnected = errors.New("capture device disconnected")

	// ErrDeviceBusy is returned when a device already has an active session.
	ErrDeviceBusy = errors.New("capture device already in use")

	// ErrNoAudio is returned when a half-buffer read produced no samples.
	ErrNoAudio = errors.New("no audio extracted")
)

// minWait bounds the backoff when the write head sits exactly on a boundary.
const minWait = time.Millisecond

// Half identifies which half of the buffer the extractor is waiting for.
type Half int

const (
	// AwaitingFront waits for the write head to cross the midpoint.
	AwaitingFront Half = iota
	// AwaitingBack waits for the write head to wrap to the start.
	AwaitingBack
)

// String returns the half name used in logs and metrics.
func (h Half) String() string {
	if h == AwaitingBack {
		return "back"
	}
	return "front"
}

// Action is the outcome of one extractor tick.
type Action int

const (
	// ActionWait means no half-buffer is ready yet.
	ActionWait Action = iota
	// ActionEmitFront means samples [0, midpoint) are ready.
	ActionEmitFront
	// ActionEmitBack means samples [midpoint, capacity) are ready.
	ActionEmitBack
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionEmitFront:
		return "emit-front"
	case ActionEmitBack:
		return "emit-back"
	default:
		return "wait"
	}
}

// Decision describes what to do after a tick.
type Decision struct {
	Action Action
	Offset int           // first frame of the ready half
	Frames int           // frames in the ready half
	Wait   time.Duration // only set for ActionWait
}

// Extractor is the half-buffer state machine. It is not safe for concurrent
// use; each recording session owns exactly one.
type Extractor struct {
	capacity   int
	midpoint   int
	sampleRate int
	pending    Half
}

// NewExtractor creates an extractor for a buffer of capacity frames.
func NewExtractor(capacity, sampleRate int) (*Extractor, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("buffer capacity must be at least 2 frames, got %d", capacity)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	return &Extractor{
		capacity:   capacity,
		midpoint:   capacity / 2,
		sampleRate: sampleRate,
		pending:    AwaitingFront,
	}, nil
}

// Pending returns the half the extractor is waiting for.
func (e *Extractor) Pending() Half { return e.pending }

// Midpoint returns capacity / 2.
func (e *Extractor) Midpoint() int { return e.midpoint }

// Capacity returns the buffer length in frames.
func (e *Extractor) Capacity() int { return e.capacity }

// Tick evaluates the write position and flips parity when a half is ready.
func (e *Extractor) Tick(writePos int) (Decision, error) {
	if writePos < 0 || writePos > e.capacity {
		return Decision{}, fmt.Errorf("%w: write position %d outside [0, %d]", ErrDeviceDisconnected, writePos, e.capacity)
	}

	switch {
	case e.pending == AwaitingFront && writePos >= e.midpoint:
		e.pending = AwaitingBack
		return Decision{Action: ActionEmitFront, Offset: 0, Frames: e.midpoint}, nil

	case e.pending == AwaitingBack && writePos < e.midpoint:
		e.pending = AwaitingFront
		return Decision{Action: ActionEmitBack, Offset: e.midpoint, Frames: e.capacity - e.midpoint}, nil
	}

	remaining := e.midpoint - writePos
	if e.pending == AwaitingBack {
		remaining = e.capacity - writePos
	}
	wait := time.Duration(remaining) * time.Second / time.Duration(e.sampleRate)
	if wait < minWait {
		wait = minWait
	}
	return Decision{Action: ActionWait, Wait: wait}, nil
}
