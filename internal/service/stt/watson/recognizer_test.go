package watson

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"voice-command-pipeline/internal/service/stt"
)

type staticToken string

func (s staticToken) Token(ctx context.Context) (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) Token(ctx context.Context) (string, error) {
	return "", errors.New("token not ready")
}

// startWatsonServer launches a fake recognize endpoint. The server is closed
// when the test finishes.
func startWatsonServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readText(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("read: %v", err)
		return nil
	}
	if typ != websocket.MessageText {
		t.Errorf("expected text frame, got %v", typ)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("unmarshal: %v", err)
	}
	return m
}

func writeText(conn *websocket.Conn, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, []byte(msg))
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		service  string
		expected string
		wantErr  bool
	}{
		{"https to wss", "https://stream.watsonplatform.net/speech-to-text/api", "wss://stream.watsonplatform.net/speech-to-text/api/v1/recognize?model=en-US_BroadbandModel", false},
		{"trailing slash", "https://example.com/api/", "wss://example.com/api/v1/recognize?model=en-US_BroadbandModel", false},
		{"http to ws", "http://localhost:8080", "ws://localhost:8080/v1/recognize?model=en-US_BroadbandModel", false},
		{"bad scheme", "ftp://example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildURL(tt.service, stt.DefaultOptions())
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestStartMessage_PassesOptionsThrough(t *testing.T) {
	threshold := 0.2
	opts := stt.DefaultOptions()
	opts.WordAlternativesThreshold = &threshold
	opts.SpeakerLabels = true

	data, err := json.Marshal(newStartMessage(opts, stt.AudioFormat{SampleRateHz: 22050, Channels: 1}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m map[string]any
	json.Unmarshal(data, &m)

	expect := map[string]any{
		"action":                      "start",
		"content-type":                "audio/l16;rate=22050;channels=1;endianness=little-endian",
		"interim_results":             true,
		"word_confidence":             true,
		"timestamps":                  true,
		"max_alternatives":            float64(1),
		"inactivity_timeout":          float64(-1),
		"profanity_filter":            false,
		"smart_formatting":            true,
		"speaker_labels":              true,
		"word_alternatives_threshold": 0.2,
	}
	for k, v := range expect {
		if m[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, m[k])
		}
	}
	if _, ok := m["keywords"]; ok {
		t.Error("expected keywords to be omitted when empty")
	}
}

func TestStartMessage_NullThresholdOmitted(t *testing.T) {
	data, _ := json.Marshal(newStartMessage(stt.DefaultOptions(), stt.AudioFormat{SampleRateHz: 16000}))
	if strings.Contains(string(data), "word_alternatives_threshold") {
		t.Errorf("expected unset threshold to be omitted, got %s", data)
	}
	if !strings.Contains(string(data), "channels=1") {
		t.Errorf("expected channel count to default to 1, got %s", data)
	}
}

func TestRecognizer_StreamSession(t *testing.T) {
	gotAuth := make(chan string, 1)
	gotModel := make(chan string, 1)
	gotAudio := make(chan []byte, 4)
	gotStop := make(chan struct{}, 1)

	srv := startWatsonServer(t, func(conn *websocket.Conn, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		gotModel <- r.URL.Query().Get("model")

		start := readText(t, conn)
		if start["action"] != "start" {
			t.Errorf("expected start action, got %v", start["action"])
		}
		writeText(conn, `{"state":"listening"}`)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		typ, audio, err := conn.Read(ctx)
		if err != nil || typ != websocket.MessageBinary {
			t.Errorf("expected binary audio frame, got %v %v", typ, err)
			return
		}
		gotAudio <- audio

		writeText(conn, `{"result_index":0,"results":[{"final":false,"alternatives":[{"transcript":"launch an "}]}]}`)
		writeText(conn, `{"speaker_labels":[{"from":0.1,"to":0.9,"speaker":2,"confidence":0.7,"final":true}]}`)
		writeText(conn, `{"result_index":0,"results":[{"final":true,"alternatives":[{"transcript":"launch an airstrike ","confidence":0.92},{"transcript":"lunch an airstrike","confidence":0.4}],`+
			`"keywords_result":{"airstrike":[{"normalized_text":"airstrike","start_time":0.5,"end_time":0.9,"confidence":0.88}]},`+
			`"word_alternatives":[{"start_time":0.1,"end_time":0.3,"alternatives":[{"word":"launch","confidence":0.9},{"word":"lunch","confidence":0.1}]}]}]}`)

		stop := readText(t, conn)
		if stop["action"] == "stop" {
			gotStop <- struct{}{}
		}
	})

	rec := New(srv.URL, staticToken("tok-1"))
	s, err := rec.Open(context.Background(), stt.DefaultOptions(), stt.AudioFormat{SampleRateHz: 22050, Channels: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Send(context.Background(), []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	if auth := <-gotAuth; auth != "Bearer tok-1" {
		t.Errorf("expected bearer token header, got %q", auth)
	}
	if model := <-gotModel; model != "en-US_BroadbandModel" {
		t.Errorf("expected model query param, got %q", model)
	}
	select {
	case audio := <-gotAudio:
		if string(audio) != string([]byte{1, 2, 3, 4}) {
			t.Errorf("expected audio bytes to be forwarded, got %v", audio)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio")
	}

	interim := receive(t, s)
	if interim.Final || interim.Transcript != "launch an" {
		t.Errorf("expected trimmed interim 'launch an', got %+v", interim)
	}

	final := receive(t, s)
	if !final.Final {
		t.Fatalf("expected final result, got %+v", final)
	}
	if final.Transcript != "launch an airstrike" || final.Confidence != 0.92 {
		t.Errorf("unexpected final: %+v", final)
	}
	if len(final.Alternatives) != 2 {
		t.Errorf("expected 2 alternatives, got %d", len(final.Alternatives))
	}
	if kw := final.Keywords["airstrike"]; len(kw) != 1 || kw[0].Confidence != 0.88 {
		t.Errorf("expected airstrike keyword match, got %+v", final.Keywords)
	}
	if len(final.WordAlternatives) != 1 || len(final.WordAlternatives[0].Alternatives) != 2 {
		t.Errorf("expected one word alternative slot with 2 words, got %+v", final.WordAlternatives)
	}
	if len(final.SpeakerLabels) != 1 || final.SpeakerLabels[0].Speaker != 2 {
		t.Errorf("expected speaker label for speaker 2, got %+v", final.SpeakerLabels)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	select {
	case <-gotStop:
	case <-time.After(3 * time.Second):
		t.Error("expected stop action on close")
	}
	if s.Err() != nil {
		t.Errorf("expected nil error after local close, got %v", s.Err())
	}
}

func TestRecognizer_RemoteError(t *testing.T) {
	srv := startWatsonServer(t, func(conn *websocket.Conn, r *http.Request) {
		readText(t, conn)
		writeText(conn, `{"error":"Model en-XX_BroadbandModel not found"}`)
		<-conn.CloseRead(context.Background()).Done()
	})

	rec := New(srv.URL, nil)
	s, err := rec.Open(context.Background(), stt.DefaultOptions(), stt.AudioFormat{SampleRateHz: 22050})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	select {
	case _, ok := <-s.Results():
		if ok {
			t.Fatal("expected results channel to close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for stream end")
	}
	if !errors.Is(s.Err(), stt.ErrRemoteService) {
		t.Errorf("expected ErrRemoteService, got %v", s.Err())
	}
	if !strings.Contains(s.Err().Error(), "not found") {
		t.Errorf("expected remote message in error, got %v", s.Err())
	}
}

func TestRecognizer_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	rec := New(srv.URL, nil)
	_, err := rec.Open(context.Background(), stt.DefaultOptions(), stt.AudioFormat{SampleRateHz: 22050})
	if !errors.Is(err, stt.ErrConnection) {
		t.Errorf("expected ErrConnection, got %v", err)
	}
}

func TestRecognizer_TokenFailure(t *testing.T) {
	rec := New("https://example.invalid", failingToken{})
	_, err := rec.Open(context.Background(), stt.DefaultOptions(), stt.AudioFormat{SampleRateHz: 22050})
	if !errors.Is(err, stt.ErrAuthenticationPending) {
		t.Errorf("expected ErrAuthenticationPending, got %v", err)
	}
}

func TestRecognizer_Defaults(t *testing.T) {
	rec := New("", nil)
	if rec.serviceURL != DefaultServiceURL {
		t.Errorf("expected default service URL, got %s", rec.serviceURL)
	}
	if rec.Name() != "watson" {
		t.Errorf("expected name 'watson', got %s", rec.Name())
	}
	if _, err := url.Parse(rec.serviceURL); err != nil {
		t.Errorf("default URL does not parse: %v", err)
	}
}

func receive(t *testing.T, s stt.Stream) stt.Result {
	t.Helper()
	select {
	case r, ok := <-s.Results():
		if !ok {
			t.Fatalf("results closed early: %v", s.Err())
		}
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for result")
	}
	return stt.Result{}
}
