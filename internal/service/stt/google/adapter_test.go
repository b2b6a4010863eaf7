package google

import (
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/protobuf/types/known/durationpb"

	"voice-command-pipeline/internal/service/stt"
)

func TestStreamingConfig_Defaults(t *testing.T) {
	cfg := streamingConfig(stt.DefaultOptions(), stt.AudioFormat{SampleRateHz: 22050, Channels: 1})
	rc := cfg.GetConfig()

	if rc.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("expected LINEAR16 encoding, got %v", rc.GetEncoding())
	}
	if rc.GetSampleRateHertz() != 22050 {
		t.Errorf("expected sample rate 22050, got %d", rc.GetSampleRateHertz())
	}
	if rc.GetLanguageCode() != "en-US" {
		t.Errorf("expected language 'en-US', got %s", rc.GetLanguageCode())
	}
	if rc.GetModel() != "" {
		t.Errorf("expected Watson model name to be dropped, got %s", rc.GetModel())
	}
	if rc.GetMaxAlternatives() != 1 {
		t.Errorf("expected max alternatives 1, got %d", rc.GetMaxAlternatives())
	}
	if !rc.GetEnableWordConfidence() || !rc.GetEnableWordTimeOffsets() || !rc.GetEnableAutomaticPunctuation() {
		t.Errorf("expected word confidence, time offsets and punctuation on, got %+v", rc)
	}
	if rc.GetDiarizationConfig() != nil {
		t.Error("expected no diarization by default")
	}
	if !cfg.GetInterimResults() {
		t.Error("expected interim results on")
	}
	if !cfg.GetEnableVoiceActivityEvents() {
		t.Error("expected voice activity events when silence detection is on")
	}
	if cfg.GetVoiceActivityTimeout() != nil {
		t.Error("expected no voice activity timeout for unbounded inactivity")
	}
}

func TestStreamingConfig_CustomValues(t *testing.T) {
	opts := stt.DefaultOptions()
	opts.Model = "latest_short"
	opts.LanguageCode = "es-ES"
	opts.SpeakerLabels = true
	opts.ProfanityFilter = true
	opts.InactivityTimeout = 30
	opts.Keywords = []string{"airstrike", "teleport"}

	cfg := streamingConfig(opts, stt.AudioFormat{SampleRateHz: 16000, Channels: 2})
	rc := cfg.GetConfig()

	if rc.GetModel() != "latest_short" {
		t.Errorf("expected model 'latest_short', got %s", rc.GetModel())
	}
	if rc.GetLanguageCode() != "es-ES" {
		t.Errorf("expected language 'es-ES', got %s", rc.GetLanguageCode())
	}
	if rc.GetAudioChannelCount() != 2 {
		t.Errorf("expected 2 channels, got %d", rc.GetAudioChannelCount())
	}
	if !rc.GetDiarizationConfig().GetEnableSpeakerDiarization() {
		t.Error("expected diarization enabled")
	}
	if !rc.GetProfanityFilter() {
		t.Error("expected profanity filter on")
	}
	if phrases := rc.GetSpeechContexts()[0].GetPhrases(); len(phrases) != 2 {
		t.Errorf("expected 2 speech context phrases, got %v", phrases)
	}
	if got := cfg.GetVoiceActivityTimeout().GetSpeechEndTimeout().AsDuration(); got != 30*time.Second {
		t.Errorf("expected speech end timeout 30s, got %v", got)
	}
}

func TestToResult(t *testing.T) {
	r := &speechpb.StreamingRecognitionResult{
		IsFinal: true,
		Alternatives: []*speechpb.SpeechRecognitionAlternative{
			{
				Transcript: " launch an airstrike",
				Confidence: 0.92,
				Words: []*speechpb.WordInfo{
					{Word: "launch", SpeakerTag: 1, StartTime: durationpb.New(0), EndTime: durationpb.New(300 * time.Millisecond)},
					{Word: "an", SpeakerTag: 0},
				},
			},
			{Transcript: "lunch an airstrike", Confidence: 0.3},
		},
	}

	res, ok := toResult(r)
	if !ok {
		t.Fatal("expected result")
	}
	if !res.Final || res.Transcript != "launch an airstrike" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Confidence < 0.919 || res.Confidence > 0.921 {
		t.Errorf("expected confidence ~0.92, got %v", res.Confidence)
	}
	if len(res.Alternatives) != 2 {
		t.Errorf("expected 2 alternatives, got %d", len(res.Alternatives))
	}
	if len(res.SpeakerLabels) != 1 || res.SpeakerLabels[0].Speaker != 1 || res.SpeakerLabels[0].To != 0.3 {
		t.Errorf("expected one speaker label for speaker 1, got %+v", res.SpeakerLabels)
	}
}

func TestToResult_NoAlternatives(t *testing.T) {
	if _, ok := toResult(&speechpb.StreamingRecognitionResult{IsFinal: true}); ok {
		t.Error("expected result without alternatives to be skipped")
	}
}

func TestModelName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en-US_BroadbandModel", ""},
		{"en-US_NarrowbandModel", ""},
		{"latest_long", "latest_long"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := modelName(tt.input); got != tt.expected {
			t.Errorf("modelName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
