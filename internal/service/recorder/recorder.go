package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-command-pipeline/internal/capture"
	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/observability/metrics"
)

// Recorder hands out recording sessions and enforces that at most one
// session owns a given capture device at a time.
type Recorder struct {
	device   capture.Device
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a recorder over device.
func New(device capture.Device) *Recorder {
	return &Recorder{
		device:   device,
		logger:   logging.WithComponent("recorder"),
		metrics:  metrics.DefaultMetrics,
		sessions: make(map[string]*Session),
	}
}

// Start opens the device and launches the recording loop. Chunks are passed to
// sink in capture order. Cancelling ctx stops the session like Stop does.
func (r *Recorder) Start(ctx context.Context, cfg SessionConfig, sink ChunkSink) (*Session, error) {
	if sink == nil {
		return nil, errors.New("chunk sink is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[cfg.DeviceID]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceBusy, cfg.DeviceID)
	}

	buffer, err := r.device.Start(cfg.DeviceID, true, cfg.BufferSeconds, cfg.SampleRateHz)
	if err != nil {
		return nil, fmt.Errorf("start capture on %q: %w", cfg.DeviceID, err)
	}
	if buffer == nil {
		_ = r.device.Stop(cfg.DeviceID)
		return nil, fmt.Errorf("%w: device %q returned no buffer", ErrDeviceDisconnected, cfg.DeviceID)
	}

	extractor, err := NewExtractor(buffer.Frames(), buffer.SampleRate())
	if err != nil {
		_ = r.device.Stop(cfg.DeviceID)
		return nil, err
	}

	s := newSession(ctx, uuid.NewString(), cfg, r.device, buffer, extractor, sink, r.remove)
	r.sessions[cfg.DeviceID] = s
	r.metrics.RecordSessionStart()

	s.logger.Info().
		Int("capacity", extractor.Capacity()).
		Int("sampleRateHz", buffer.SampleRate()).
		Int("channels", buffer.Channels()).
		Msg("Recording started")

	go s.run()
	return s, nil
}

// Session returns the active session for deviceID.
func (r *Recorder) Session(deviceID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[deviceID]
	return s, ok
}

// StopAll stops every active session.
func (r *Recorder) StopAll() {
	r.mu.Lock()
	active := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		active = append(active, s)
	}
	r.mu.Unlock()

	for _, s := range active {
		_ = s.Stop()
	}
}

func (r *Recorder) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.deviceID] == s {
		delete(r.sessions, s.deviceID)
	}
}
