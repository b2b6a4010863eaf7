// Package schema checks outgoing event payloads before they are exported.
package schema

import (
	"errors"
	"fmt"

	"voice-command-pipeline/internal/models"
)

// ErrInvalidEvent is returned for payloads missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the known payload types. Unknown types pass.
func (v *Validator) Validate(event any) error {
	var errs []error
	require := func(ok bool, field string) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidEvent, field))
		}
	}
	confidence := func(c float64) {
		require(c >= 0 && c <= 1, "confidence out of range")
	}

	switch e := event.(type) {
	case models.TranscriptPartial:
		require(e.EventType == models.EventTranscriptPartial, "eventType")
		require(e.StreamID != "", "streamId")
		require(e.UtteranceID != "", "utteranceId")
		require(e.Timestamp > 0, "timestamp")
		confidence(e.Confidence)
	case models.TranscriptFinal:
		require(e.EventType == models.EventTranscriptFinal, "eventType")
		require(e.StreamID != "", "streamId")
		require(e.UtteranceID != "", "utteranceId")
		require(e.Timestamp > 0, "timestamp")
		require(e.Text != "", "text")
		confidence(e.Confidence)
	case models.IntentClassified:
		require(e.EventType == models.EventIntentClassified, "eventType")
		require(e.Intent != "", "intent")
		require(e.Timestamp > 0, "timestamp")
		confidence(e.Confidence)
	case models.TranscriptTranslated:
		require(e.EventType == models.EventTranslation, "eventType")
		require(e.Timestamp > 0, "timestamp")
		require(e.Translation != "", "translation")
	case models.NamedEvent:
		require(e.EventType == models.EventNamed, "eventType")
		require(e.Name != "", "name")
		require(e.Timestamp > 0, "timestamp")
	}
	return errors.Join(errs...)
}
