package stt

import (
	"errors"
	"fmt"

	"voice-command-pipeline/internal/config"
)

// Options is the recognition configuration passed through to the backend.
// None of these have local semantics beyond validation.
type Options struct {
	Model                     string
	LanguageCode              string
	DetectSilence             bool
	SilenceThreshold          float64
	WordConfidence            bool
	Timestamps                bool
	MaxAlternatives           int
	InterimResults            bool
	InactivityTimeout         int // seconds, negative means unbounded
	ProfanityFilter           bool
	SmartFormatting           bool
	SpeakerLabels             bool
	WordAlternativesThreshold *float64
	Keywords                  []string
	KeywordsThreshold         *float64
}

// DefaultOptions returns the options the pipeline runs with unless configured.
func DefaultOptions() Options {
	return Options{
		Model:             "en-US_BroadbandModel",
		LanguageCode:      "en-US",
		DetectSilence:     true,
		SilenceThreshold:  0.01,
		WordConfidence:    true,
		Timestamps:        true,
		MaxAlternatives:   1,
		InterimResults:    true,
		InactivityTimeout: -1,
		SmartFormatting:   true,
	}
}

// OptionsFromConfig maps the STT configuration section onto Options.
func OptionsFromConfig(c config.STTConfig) Options {
	return Options{
		Model:                     c.Model,
		LanguageCode:              c.LanguageCode,
		DetectSilence:             c.DetectSilence,
		SilenceThreshold:          c.SilenceThreshold,
		WordConfidence:            c.WordConfidence,
		Timestamps:                c.Timestamps,
		MaxAlternatives:           c.MaxAlternatives,
		InterimResults:            c.InterimResults,
		InactivityTimeout:         c.InactivityTimeout,
		ProfanityFilter:           c.ProfanityFilter,
		SmartFormatting:           c.SmartFormatting,
		SpeakerLabels:             c.SpeakerLabels,
		WordAlternativesThreshold: c.WordAlternativesThreshold,
	}
}

// Validate checks the options for values no backend accepts.
func (o Options) Validate() error {
	var errs []error
	if o.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if o.SilenceThreshold < 0 || o.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("silence threshold %v outside [0, 1]", o.SilenceThreshold))
	}
	if o.MaxAlternatives < 1 {
		errs = append(errs, fmt.Errorf("max alternatives must be at least 1, got %d", o.MaxAlternatives))
	}
	if o.WordAlternativesThreshold != nil && *o.WordAlternativesThreshold < 0 {
		errs = append(errs, fmt.Errorf("word alternatives threshold must be non-negative, got %v", *o.WordAlternativesThreshold))
	}
	if o.KeywordsThreshold != nil && (*o.KeywordsThreshold < 0 || *o.KeywordsThreshold > 1) {
		errs = append(errs, fmt.Errorf("keywords threshold %v outside [0, 1]", *o.KeywordsThreshold))
	}
	if len(o.Keywords) > 0 && o.KeywordsThreshold == nil {
		errs = append(errs, errors.New("keywords require a keywords threshold"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, errors.Join(errs...))
	}
	return nil
}
