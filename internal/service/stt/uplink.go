package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/observability/metrics"
	"voice-command-pipeline/internal/service/recorder"
)

const (
	defaultSendQueue   = 64
	defaultResultQueue = 64
)

// UplinkConfig configures an Uplink.
type UplinkConfig struct {
	Options Options
	Format  AudioFormat

	// Auth gates Start on credential readiness. Nil means no credentials are needed.
	Auth Readiness

	// OnError is invoked at most once per stream when it fails. Active is
	// already false when it runs.
	OnError func(err error)

	// SendQueue bounds the number of chunks waiting to be written.
	SendQueue int
}

// Uplink owns the lifecycle of one recognition stream at a time, forwarding
// audio chunks in submission order and delivering results over a channel.
type Uplink struct {
	recognizer Recognizer
	cfg        UplinkConfig
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	active   bool
	starting bool
	current  *uplinkStream
}

// uplinkStream is the state of one started stream.
type uplinkStream struct {
	id      string
	stream  Stream
	ctx     context.Context
	cancel  context.CancelFunc
	queue   chan []byte
	results chan Result
	wg      sync.WaitGroup
	errOnce sync.Once
	started time.Time
	logger  zerolog.Logger
}

// NewUplink creates an uplink over recognizer.
func NewUplink(recognizer Recognizer, cfg UplinkConfig) *Uplink {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	return &Uplink{
		recognizer: recognizer,
		cfg:        cfg,
		logger:     logging.WithComponent("uplink"),
		metrics:    metrics.DefaultMetrics,
	}
}

// Active reports whether a stream is open.
func (u *Uplink) Active() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active
}

// StreamID returns the identifier of the open stream, or "".
func (u *Uplink) StreamID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.current == nil || !u.active {
		return ""
	}
	return u.current.id
}

// Start opens a stream and returns its result channel, which is closed when
// the stream ends. Starting an active uplink returns the current channel.
// The recognizer is dialed without holding the uplink lock, so Active, Send
// and Stop answer immediately while a start is in progress.
func (u *Uplink) Start(ctx context.Context) (<-chan Result, error) {
	u.mu.Lock()
	if u.active {
		results := u.current.results
		u.mu.Unlock()
		return results, nil
	}
	if u.starting {
		u.mu.Unlock()
		return nil, ErrStartInProgress
	}
	if u.cfg.Auth != nil && !u.cfg.Auth.Ready() {
		u.mu.Unlock()
		return nil, ErrAuthenticationPending
	}
	if err := u.cfg.Options.Validate(); err != nil {
		u.mu.Unlock()
		return nil, err
	}
	u.starting = true
	u.mu.Unlock()

	stream, err := u.recognizer.Open(ctx, u.cfg.Options, u.cfg.Format)

	u.mu.Lock()
	defer u.mu.Unlock()
	u.starting = false
	if err != nil {
		if errors.Is(err, ErrAuthenticationPending) || errors.Is(err, ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	id := uuid.NewString()
	sctx, cancel := context.WithCancel(context.Background())
	s := &uplinkStream{
		id:      id,
		stream:  stream,
		ctx:     sctx,
		cancel:  cancel,
		queue:   make(chan []byte, u.cfg.SendQueue),
		results: make(chan Result, defaultResultQueue),
		started: time.Now(),
		logger:  logging.WithStream(id, u.recognizer.Name()),
	}
	u.current = s
	u.active = true
	u.metrics.RecordStreamStart()

	s.wg.Add(2)
	go u.writeLoop(s)
	go u.readLoop(s)

	s.logger.Info().
		Str("model", u.cfg.Options.Model).
		Int("sampleRateHz", u.cfg.Format.SampleRateHz).
		Bool("interimResults", u.cfg.Options.InterimResults).
		Msg("Stream started")

	return s.results, nil
}

// Send queues one chunk for transmission. Chunks reach the backend in the
// order Send was called.
func (u *Uplink) Send(ctx context.Context, chunk recorder.AudioChunk) error {
	u.mu.Lock()
	if !u.active {
		u.mu.Unlock()
		return ErrNotActive
	}
	s := u.current
	u.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := u.CheckFormat(chunk.SampleRate(), chunk.Channels()); err != nil {
		return err
	}
	pcm := FloatToL16(chunk.Samples())
	select {
	case s.queue <- pcm:
		return nil
	case <-s.ctx.Done():
		return ErrNotActive
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CheckFormat rejects audio the stream would misinterpret.
func (u *Uplink) CheckFormat(sampleRateHz, channels int) error {
	want := u.cfg.Format
	if want.SampleRateHz > 0 && sampleRateHz != want.SampleRateHz {
		return fmt.Errorf("%w: audio at %d Hz, stream expects %d Hz", ErrAudioFormat, sampleRateHz, want.SampleRateHz)
	}
	if want.Channels > 0 && channels != want.Channels {
		return fmt.Errorf("%w: audio has %d channels, stream expects %d", ErrAudioFormat, channels, want.Channels)
	}
	return nil
}

// Stop closes the stream and drops any queued audio. Safe to call repeatedly.
func (u *Uplink) Stop() error {
	u.mu.Lock()
	if !u.active {
		u.mu.Unlock()
		return nil
	}
	s := u.current
	u.active = false
	u.mu.Unlock()

	s.cancel()
	err := s.stream.Close()
	s.wg.Wait()

	u.metrics.RecordStreamEnd(u.recognizer.Name(), false, time.Since(s.started).Seconds())
	s.logger.Info().Dur("duration", time.Since(s.started)).Msg("Stream stopped")
	return err
}

// fail ends the stream after a transport or remote error. The error callback
// runs once, after Active has turned false.
func (u *Uplink) fail(s *uplinkStream, err error) {
	s.errOnce.Do(func() {
		u.mu.Lock()
		if u.current != s || !u.active {
			// Stop won the race
			u.mu.Unlock()
			return
		}
		u.active = false
		u.mu.Unlock()

		s.cancel()
		_ = s.stream.Close()

		u.metrics.RecordStreamEnd(u.recognizer.Name(), true, time.Since(s.started).Seconds())
		s.logger.Error().Err(err).Msg("Stream failed")

		if u.cfg.OnError != nil {
			u.cfg.OnError(err)
		}
	})
}

func (u *Uplink) writeLoop(s *uplinkStream) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case pcm := <-s.queue:
			if err := s.stream.Send(s.ctx, pcm); err != nil {
				if s.ctx.Err() != nil {
					return
				}
				u.fail(s, fmt.Errorf("%w: send: %w", ErrTransport, err))
				return
			}
		}
	}
}

func (u *Uplink) readLoop(s *uplinkStream) {
	defer s.wg.Done()
	defer close(s.results)

	in := s.stream.Results()
	for {
		select {
		case <-s.ctx.Done():
			return
		case r, ok := <-in:
			if !ok {
				u.streamEnded(s)
				return
			}
			if r.Final {
				u.metrics.RecordFinal()
			} else {
				u.metrics.RecordInterim()
			}
			select {
			case s.results <- r:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// streamEnded handles the backend closing the result stream on its own.
func (u *Uplink) streamEnded(s *uplinkStream) {
	if s.ctx.Err() != nil {
		return
	}
	err := s.stream.Err()
	if err == nil {
		err = errors.New("stream closed by remote")
	}
	if !errors.Is(err, ErrRemoteService) && !errors.Is(err, ErrTransport) {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
	}
	u.fail(s, err)
}
