// Package mock provides a scripted recognizer for running the pipeline
// without cloud credentials. It simulates realistic streaming behavior:
// progressive interim transcripts followed by exactly one final transcript
// per utterance.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voice-command-pipeline/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive interim transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample voice commands for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"launch", "launch an"},
		Final:      "launch an airstrike",
		Confidence: 0.92,
	},
	{
		Partials:   []string{"teleport", "teleport me"},
		Final:      "teleport me out of here",
		Confidence: 0.88,
	},
	{
		Partials:   []string{"hello"},
		Final:      "hello there",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"call in", "call in air"},
		Final:      "call in air support",
		Confidence: 0.95,
	},
}

// Recognizer implements stt.Recognizer with scripted responses.
type Recognizer struct {
	// Utterances cycled through by every stream. Defaults to DefaultUtterances.
	Utterances []SimulatedUtterance
	// Delay simulates backend processing time per result.
	Delay time.Duration
	// FailAfter ends each stream with a remote error after that many sends. Zero disables.
	FailAfter int
	// OpenErr, when set, is returned by Open.
	OpenErr error

	mu    sync.Mutex
	opens int
	last  *Stream
}

// New creates a mock recognizer.
func New() *Recognizer {
	return &Recognizer{Utterances: DefaultUtterances}
}

// Name implements stt.Recognizer.
func (r *Recognizer) Name() string { return "mock" }

// Open starts a new scripted stream.
func (r *Recognizer) Open(ctx context.Context, opts stt.Options, format stt.AudioFormat) (stt.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.opens++
	if r.OpenErr != nil {
		return nil, r.OpenErr
	}
	utterances := r.Utterances
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	s := &Stream{
		utterances: utterances,
		interim:    opts.InterimResults,
		delay:      r.Delay,
		failAfter:  r.FailAfter,
		results:    make(chan stt.Result, 64),
		done:       make(chan struct{}),
	}
	r.last = s
	return s, nil
}

// Opens returns the number of Open calls.
func (r *Recognizer) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

// LastStream returns the most recently opened stream.
func (r *Recognizer) LastStream() *Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Stream is a scripted recognition stream. Each Send advances the current
// utterance by one interim result; once all partials are out, the next Send
// produces the final result and moves to the next utterance.
type Stream struct {
	utterances []SimulatedUtterance
	interim    bool
	delay      time.Duration
	failAfter  int

	mu           sync.Mutex
	current      int
	partialIndex int
	resultIndex  int
	bytes        int
	sends        int
	err          error
	results      chan stt.Result
	done         chan struct{}
	closeOnce    sync.Once
}

// Send simulates receiving audio and produces the next scripted result.
func (s *Stream) Send(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return fmt.Errorf("mock stream closed")
	default:
	}

	s.sends++
	s.bytes += len(pcm)

	if s.failAfter > 0 && s.sends > s.failAfter {
		s.err = fmt.Errorf("%w: simulated backend failure", stt.ErrRemoteService)
		go s.Close()
		return nil
	}

	utt := s.utterances[s.current]
	var r stt.Result
	if s.partialIndex < len(utt.Partials) {
		text := utt.Partials[s.partialIndex]
		s.partialIndex++
		if !s.interim {
			return nil
		}
		r = stt.Result{Transcript: text, Alternatives: []stt.Alternative{{Transcript: text}}}
	} else {
		r = stt.Result{
			Final:        true,
			Transcript:   utt.Final,
			Confidence:   utt.Confidence,
			Alternatives: []stt.Alternative{{Transcript: utt.Final, Confidence: utt.Confidence}},
		}
		s.current = (s.current + 1) % len(s.utterances)
		s.partialIndex = 0
	}
	r.ResultIndex = s.resultIndex
	if r.Final {
		s.resultIndex++
	}

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	r.ReceivedAt = time.Now()

	select {
	case s.results <- r:
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Results implements stt.Stream.
func (s *Stream) Results() <-chan stt.Result { return s.results }

// Err implements stt.Stream.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		close(s.results)
		s.mu.Unlock()
	})
	return nil
}

// BytesReceived returns the total audio bytes sent on the stream.
func (s *Stream) BytesReceived() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}
