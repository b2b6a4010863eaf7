// Package models defines the JSON payloads exported by the pipeline.
package models

const (
	EventTranscriptPartial = "voice.transcript.partial"
	EventTranscriptFinal   = "voice.transcript.final"
	EventIntentClassified  = "voice.intent.classified"
	EventTranslation       = "voice.transcript.translated"
	EventNamed             = "voice.event"
)

// TranscriptPartial represents an interim transcript result.
type TranscriptPartial struct {
	EventType   string  `json:"eventType"`
	StreamID    string  `json:"streamId"`
	DeviceID    string  `json:"deviceId"`
	Provider    string  `json:"provider"`
	Timestamp   int64   `json:"timestamp"`
	UtteranceID string  `json:"utteranceId"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
}

// Alternative is one ranked transcript hypothesis.
type Alternative struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TranscriptFinal represents a final transcript result.
type TranscriptFinal struct {
	EventType    string        `json:"eventType"`
	StreamID     string        `json:"streamId"`
	DeviceID     string        `json:"deviceId"`
	Provider     string        `json:"provider"`
	Timestamp    int64         `json:"timestamp"`
	UtteranceID  string        `json:"utteranceId"`
	Text         string        `json:"text"`
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	Keywords     []string      `json:"keywords,omitempty"`
	Speakers     []int         `json:"speakers,omitempty"`
}

// IntentClassified carries the top intent for a final transcript.
type IntentClassified struct {
	EventType   string  `json:"eventType"`
	UtteranceID string  `json:"utteranceId"`
	Timestamp   int64   `json:"timestamp"`
	Text        string  `json:"text"`
	Intent      string  `json:"intent"`
	Confidence  float64 `json:"confidence"`
	Trigger     string  `json:"trigger,omitempty"`
}

// TranscriptTranslated carries the translation of a final transcript.
type TranscriptTranslated struct {
	EventType   string `json:"eventType"`
	UtteranceID string `json:"utteranceId"`
	Timestamp   int64  `json:"timestamp"`
	Model       string `json:"model"`
	Text        string `json:"text"`
	Translation string `json:"translation"`
}

// NamedEvent mirrors an in-process bus event.
type NamedEvent struct {
	EventType string `json:"eventType"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
	Args      []any  `json:"args,omitempty"`
}
