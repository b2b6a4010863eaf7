package stt

import (
	"errors"
	"math"
	"testing"

	"voice-command-pipeline/internal/config"
)

func TestOptions_Validate(t *testing.T) {
	negative := -0.1
	half := 0.5
	tests := []struct {
		name    string
		mutate  func(o *Options)
		wantErr bool
	}{
		{"defaults", func(o *Options) {}, false},
		{"missing model", func(o *Options) { o.Model = "" }, true},
		{"negative silence threshold", func(o *Options) { o.SilenceThreshold = -0.01 }, true},
		{"zero alternatives", func(o *Options) { o.MaxAlternatives = 0 }, true},
		{"negative word alternatives threshold", func(o *Options) { o.WordAlternativesThreshold = &negative }, true},
		{"word alternatives threshold set", func(o *Options) { o.WordAlternativesThreshold = &half }, false},
		{"unbounded inactivity", func(o *Options) { o.InactivityTimeout = -1 }, false},
		{"keywords without threshold", func(o *Options) { o.Keywords = []string{"airstrike"} }, true},
		{"keywords with threshold", func(o *Options) { o.Keywords = []string{"airstrike"}; o.KeywordsThreshold = &half }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			err := o.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("expected ErrInvalidOptions, got %v", err)
			}
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	threshold := 0.3
	c := config.Defaults().STT
	c.Model = "en-GB_BroadbandModel"
	c.SpeakerLabels = true
	c.WordAlternativesThreshold = &threshold

	o := OptionsFromConfig(c)
	if o.Model != "en-GB_BroadbandModel" {
		t.Errorf("expected model en-GB_BroadbandModel, got %s", o.Model)
	}
	if !o.SpeakerLabels {
		t.Error("expected speaker labels on")
	}
	if o.WordAlternativesThreshold == nil || *o.WordAlternativesThreshold != 0.3 {
		t.Errorf("expected threshold 0.3, got %v", o.WordAlternativesThreshold)
	}
	if o.InactivityTimeout != -1 {
		t.Errorf("expected inactivity timeout -1, got %d", o.InactivityTimeout)
	}
}

func TestFloatToL16(t *testing.T) {
	pcm := FloatToL16([]float32{0, 1, -1, 2, -2})
	if len(pcm) != 10 {
		t.Fatalf("expected 10 bytes, got %d", len(pcm))
	}
	back := L16ToFloat(pcm)
	want := []float32{0, 1, -1, 1, -1}
	for i := range want {
		if math.Abs(float64(back[i]-want[i])) > 1e-4 {
			t.Errorf("sample %d: expected %v, got %v", i, want[i], back[i])
		}
	}
	// little-endian 32767
	if pcm[2] != 0xff || pcm[3] != 0x7f {
		t.Errorf("expected little-endian max value, got %x %x", pcm[2], pcm[3])
	}
}
