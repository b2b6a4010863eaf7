// Package stt defines the streaming speech recognition contract and the
// Uplink that owns one recognition stream at a time.
package stt

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAuthenticationPending is returned by Start while credentials are not ready.
	ErrAuthenticationPending = errors.New("authentication pending")

	// ErrConnection is returned by Start when the stream cannot be established.
	ErrConnection = errors.New("connection error")

	// ErrStartInProgress is returned by Start while another Start is dialing.
	ErrStartInProgress = errors.New("stream start in progress")

	// ErrNotActive is returned by Send when no stream is active.
	ErrNotActive = errors.New("stream not active")

	// ErrTransport is reported when the stream fails mid-flight.
	ErrTransport = errors.New("transport error")

	// ErrRemoteService is reported when the recognizer returns an error message.
	ErrRemoteService = errors.New("remote service error")

	// ErrInvalidOptions is returned when Options fail validation.
	ErrInvalidOptions = errors.New("invalid recognition options")

	// ErrAudioFormat is returned when audio does not match the stream format.
	ErrAudioFormat = errors.New("audio format mismatch")
)

// AudioFormat describes the PCM audio sent on a stream.
type AudioFormat struct {
	SampleRateHz int
	Channels     int
}

// Alternative is one candidate transcript.
type Alternative struct {
	Transcript string
	Confidence float64
}

// KeywordMatch is one spotted keyword occurrence.
type KeywordMatch struct {
	NormalizedText string
	StartTime      float64
	EndTime        float64
	Confidence     float64
}

// WordAlternative is a candidate word at a time slot.
type WordAlternative struct {
	Word       string
	Confidence float64
}

// WordAlternatives groups the candidate words for one time slot.
type WordAlternatives struct {
	StartTime    float64
	EndTime      float64
	Alternatives []WordAlternative
}

// SpeakerLabel attributes a time range to a speaker.
type SpeakerLabel struct {
	From       float64
	To         float64
	Speaker    int
	Confidence float64
	Final      bool
}

// Result is one recognition result. Interim results are superseded by the
// next result for the same utterance; a Final result is authoritative.
type Result struct {
	Final        bool
	Transcript   string
	Confidence   float64
	Alternatives []Alternative

	// Populated on final results when the backend supplies them.
	Keywords         map[string][]KeywordMatch
	WordAlternatives []WordAlternatives
	SpeakerLabels    []SpeakerLabel

	// ResultIndex identifies the utterance within the stream.
	ResultIndex int
	ReceivedAt  time.Time
}

// Stream is one open recognition stream.
type Stream interface {
	// Send transmits a block of little-endian 16-bit PCM audio.
	Send(ctx context.Context, pcm []byte) error

	// Results delivers results in receipt order and is closed when the stream ends.
	Results() <-chan Result

	// Err returns the error that ended the stream once Results is closed.
	// A stream closed via Close reports nil.
	Err() error

	// Close ends the stream and releases its transport. Safe to call repeatedly.
	Close() error
}

// Recognizer opens recognition streams against a backend (Watson, Google, mock).
type Recognizer interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Open establishes a stream. Options are passed through verbatim.
	Open(ctx context.Context, opts Options, format AudioFormat) (Stream, error)
}

// Readiness reports whether credentials are available.
type Readiness interface {
	Ready() bool
}
