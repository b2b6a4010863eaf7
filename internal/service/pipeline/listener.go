// Package pipeline runs the capture, recognition and routing stages as one
// start/stop unit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/service/auth"
	"voice-command-pipeline/internal/service/recorder"
	"voice-command-pipeline/internal/service/router"
	"voice-command-pipeline/internal/service/stt"
)

const (
	MessageIdle      = "not listening"
	MessageListening = "listening"
	MessageStopped   = "stopped"
)

// Config configures a Listener.
type Config struct {
	Capture  recorder.SessionConfig
	Channels int
	Options  stt.Options

	// Auth gates Start until credentials are ready. Nil means none are needed.
	Auth         auth.Readiness
	AuthPoll     time.Duration
	AuthDeadline time.Duration
}

// Status is the user-visible pipeline state.
type Status struct {
	Listening      bool   `json:"listening"`
	Message        string `json:"message"`
	DeviceID       string `json:"deviceId"`
	SessionID      string `json:"sessionId,omitempty"`
	StreamID       string `json:"streamId,omitempty"`
	Provider       string `json:"provider"`
	Chunks         int    `json:"chunks"`
	Transcript     string `json:"transcript,omitempty"`
	Classification string `json:"classification,omitempty"`
	Translation    string `json:"translation,omitempty"`
}

// Listener owns one recording session, one recognition stream and the
// router consuming its results.
type Listener struct {
	recorder *recorder.Recorder
	uplink   *stt.Uplink
	router   *router.Router
	provider string
	cfg      Config
	logger   zerolog.Logger

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	listening bool
	message   string
	session   *recorder.Session
	streamID  string
	cancel    context.CancelFunc
	gen       int
	wg        sync.WaitGroup
}

// New creates a listener. The stream format is taken from the capture
// settings and Start fails when the device records anything else.
func New(rec *recorder.Recorder, recognizer stt.Recognizer, rt *router.Router, cfg Config) *Listener {
	if cfg.AuthPoll <= 0 {
		cfg.AuthPoll = 100 * time.Millisecond
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	l := &Listener{
		recorder: rec,
		router:   rt,
		provider: recognizer.Name(),
		cfg:      cfg,
		message:  MessageIdle,
		logger:   logging.WithComponent("listener"),
	}
	l.uplink = stt.NewUplink(recognizer, stt.UplinkConfig{
		Options: cfg.Options,
		Format:  stt.AudioFormat{SampleRateHz: cfg.Capture.SampleRateHz, Channels: cfg.Channels},
		Auth:    cfg.Auth,
		OnError: l.onStreamError,
	})
	return l
}

// Start waits for credentials, opens the stream and begins recording.
// Starting a listening pipeline is a no-op.
func (l *Listener) Start(ctx context.Context) error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	if l.Listening() {
		return nil
	}

	if l.cfg.Auth != nil {
		waitCtx := ctx
		if l.cfg.AuthDeadline > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, l.cfg.AuthDeadline)
			defer cancel()
		}
		l.logger.Info().Msg("Waiting for credentials")
		if err := auth.WaitReady(waitCtx, l.cfg.Auth, l.cfg.AuthPoll); err != nil {
			err = fmt.Errorf("%w: %w", stt.ErrAuthenticationPending, err)
			l.setStatus(false, err.Error())
			return err
		}
	}

	results, err := l.uplink.Start(ctx)
	if err != nil {
		l.setStatus(false, err.Error())
		return err
	}
	streamID := l.uplink.StreamID()

	runCtx, cancel := context.WithCancel(context.Background())
	session, err := l.recorder.Start(runCtx, l.cfg.Capture, l.uplink.Send)
	if err != nil {
		cancel()
		_ = l.uplink.Stop()
		l.setStatus(false, err.Error())
		return err
	}
	if err := l.uplink.CheckFormat(session.SampleRate(), session.Channels()); err != nil {
		_ = session.Stop()
		cancel()
		_ = l.uplink.Stop()
		l.setStatus(false, err.Error())
		return err
	}

	l.mu.Lock()
	l.session = session
	l.streamID = streamID
	l.cancel = cancel
	l.gen++
	gen := l.gen
	l.listening = true
	l.message = MessageListening
	l.mu.Unlock()

	info := router.StreamInfo{StreamID: streamID, DeviceID: l.cfg.Capture.DeviceID, Provider: l.provider}
	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		l.router.Run(runCtx, info, results)
	}()
	go func() {
		defer l.wg.Done()
		l.watch(runCtx, gen, session)
	}()

	l.logger.Info().
		Str("deviceId", l.cfg.Capture.DeviceID).
		Str("sessionId", session.ID()).
		Str("streamId", streamID).
		Str("provider", l.provider).
		Msg("Listening")
	return nil
}

// watch ends the pipeline when the recording session terminates on its own.
func (l *Listener) watch(ctx context.Context, gen int, session *recorder.Session) {
	select {
	case <-ctx.Done():
		return
	case <-session.Done():
	}
	err := session.Err()
	if err == nil {
		return
	}
	l.logger.Error().Err(err).Str("sessionId", session.ID()).Msg("Recording ended")
	go l.halt(gen, err)
}

func (l *Listener) onStreamError(err error) {
	l.mu.RLock()
	gen := l.gen
	l.mu.RUnlock()
	// runs on an uplink goroutine; the teardown must not wait for it
	go l.halt(gen, err)
}

// halt tears down after a failure and records it as the status message.
func (l *Listener) halt(gen int, cause error) {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	l.mu.RLock()
	current := l.listening && (l.gen == gen || !l.uplink.Active())
	l.mu.RUnlock()
	if !current {
		return
	}
	l.teardown()
	l.setStatus(false, "error: "+cause.Error())
}

// Stop ends recording and the stream and releases the device. Safe to call
// repeatedly.
func (l *Listener) Stop() error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	if !l.Listening() {
		return nil
	}
	err := l.teardown()
	l.setStatus(false, MessageStopped)
	l.logger.Info().Msg("Stopped listening")
	return err
}

func (l *Listener) teardown() error {
	l.mu.Lock()
	session, cancel := l.session, l.cancel
	l.listening = false
	l.mu.Unlock()

	var errs []error
	if session != nil {
		errs = append(errs, session.Stop())
	}
	errs = append(errs, l.uplink.Stop())
	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
	return errors.Join(errs...)
}

func (l *Listener) setStatus(listening bool, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listening = listening
	l.message = message
}

// Listening reports whether the pipeline is running.
func (l *Listener) Listening() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.listening
}

// Status returns the pipeline state and the latest router texts.
func (l *Listener) Status() Status {
	l.mu.RLock()
	st := Status{
		Listening: l.listening,
		Message:   l.message,
		DeviceID:  l.cfg.Capture.DeviceID,
		Provider:  l.provider,
	}
	session := l.session
	if l.listening {
		st.StreamID = l.streamID
	}
	l.mu.RUnlock()

	if session != nil {
		st.Chunks = session.Chunks()
		if st.Listening {
			st.SessionID = session.ID()
		}
	}
	rs := l.router.Status()
	st.Transcript = rs.Transcript
	st.Classification = rs.Classification
	st.Translation = rs.Translation
	return st
}
