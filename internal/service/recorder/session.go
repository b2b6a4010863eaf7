package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"voice-command-pipeline/internal/capture"
	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/observability/metrics"
)

// ChunkSink receives chunks in capture order. A returned error is logged and
// the chunk is dropped; it does not end the session.
type ChunkSink func(ctx context.Context, chunk AudioChunk) error

// SessionConfig configures a recording session.
type SessionConfig struct {
	DeviceID      string
	BufferSeconds int
	SampleRateHz  int
}

// Session is one active recording on a capture device. It owns the device
// handle until Stop is called or the loop terminates.
type Session struct {
	id        string
	deviceID  string
	device    capture.Device
	buffer    capture.Buffer
	extractor *Extractor
	sink      ChunkSink
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	onRelease func(*Session)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// mu serializes chunk emission against Stop.
	mu      sync.RWMutex
	stopped bool
	err     error
	chunks  atomic.Int64

	stopOnce    sync.Once
	releaseOnce sync.Once
}

func newSession(ctx context.Context, id string, cfg SessionConfig, device capture.Device, buffer capture.Buffer, extractor *Extractor, sink ChunkSink, onRelease func(*Session)) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:        id,
		deviceID:  cfg.DeviceID,
		device:    device,
		buffer:    buffer,
		extractor: extractor,
		sink:      sink,
		logger:    logging.WithSession(cfg.DeviceID, id),
		metrics:   metrics.DefaultMetrics,
		onRelease: onRelease,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// DeviceID returns the device this session owns.
func (s *Session) DeviceID() string { return s.deviceID }

// SampleRate returns the sample rate of the captured audio.
func (s *Session) SampleRate() int { return s.buffer.SampleRate() }

// Channels returns the channel count of the captured audio.
func (s *Session) Channels() int { return s.buffer.Channels() }

// Done is closed once the recording loop has exited and the device is released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Active reports whether the recording loop is still running.
func (s *Session) Active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Err returns the error that terminated the session, or nil after a clean stop.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Chunks returns the number of chunks emitted so far.
func (s *Session) Chunks() int {
	return int(s.chunks.Load())
}

// Stop cancels the recording loop and releases the device. No chunk is
// emitted once Stop has begun. Safe to call repeatedly; must not be called
// from inside the ChunkSink.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.release()
		s.logger.Info().Int("chunks", s.Chunks()).Msg("Recording stopped")
	})
	<-s.done
	return nil
}

func (s *Session) run() {
	err := s.loop()
	s.finish(err)
	close(s.done)
}

func (s *Session) loop() error {
	for {
		if s.ctx.Err() != nil {
			return nil
		}
		if !s.device.IsCapturing(s.deviceID) {
			return fmt.Errorf("%w: device %q stopped capturing", ErrDeviceDisconnected, s.deviceID)
		}

		decision, err := s.extractor.Tick(s.device.WritePosition(s.deviceID))
		if err != nil {
			return err
		}

		if decision.Action == ActionWait {
			s.metrics.RecordWait(decision.Wait.Seconds())
			timer := time.NewTimer(decision.Wait)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			continue
		}

		chunk, err := s.extract(decision)
		if err != nil {
			return err
		}
		if !s.emit(decision, chunk) {
			return nil
		}
	}
}

func (s *Session) extract(d Decision) (AudioChunk, error) {
	samples := make([]float32, d.Frames*s.buffer.Channels())
	if err := s.buffer.GetData(samples, d.Offset); err != nil {
		return AudioChunk{}, fmt.Errorf("%w: %v", ErrNoAudio, err)
	}
	chunk := NewAudioChunk(samples, s.buffer.SampleRate(), s.buffer.Channels())
	if chunk.IsEmpty() {
		return AudioChunk{}, ErrNoAudio
	}
	return chunk, nil
}

// emit hands the chunk to the sink unless Stop has begun. Stop cancels the
// context before it marks the session stopped, so both are checked.
func (s *Session) emit(d Decision, chunk AudioChunk) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped || s.ctx.Err() != nil {
		return false
	}

	half := "front"
	if d.Action == ActionEmitBack {
		half = "back"
	}
	s.metrics.RecordChunk(half, chunk.Peak())
	s.logger.Debug().
		Str("half", half).
		Int("samples", chunk.Len()).
		Float32("peak", chunk.Peak()).
		Msg("Chunk extracted")

	if err := s.sink(s.ctx, chunk); err != nil {
		s.logger.Debug().Err(err).Str("half", half).Msg("Chunk dropped by sink")
	}
	s.chunks.Add(1)
	return true
}

func (s *Session) finish(err error) {
	// errors caused by our own Stop are not failures
	if s.ctx.Err() != nil {
		err = nil
	}

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.release()

	reason := ""
	switch {
	case err == nil:
	case errors.Is(err, ErrDeviceDisconnected):
		reason = "disconnected"
	case errors.Is(err, ErrNoAudio):
		reason = "no_audio"
	default:
		reason = "error"
	}
	s.metrics.RecordSessionEnd(reason)

	if err != nil {
		s.logger.Error().Err(err).Int("chunks", s.Chunks()).Msg("Recording terminated")
	}
}

// release stops the device exactly once, whether the loop errored or Stop was called.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if err := s.device.Stop(s.deviceID); err != nil {
			s.logger.Warn().Err(err).Msg("Device stop failed")
		}
		if s.onRelease != nil {
			s.onRelease(s)
		}
	})
}
