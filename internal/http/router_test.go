package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-command-pipeline/internal/app"
	"voice-command-pipeline/internal/config"
	"voice-command-pipeline/internal/events"
	"voice-command-pipeline/internal/service/pipeline"
)

type fakePipeline struct {
	listening bool
}

func (f *fakePipeline) Start(ctx context.Context) error { f.listening = true; return nil }
func (f *fakePipeline) Stop() error                     { f.listening = false; return nil }
func (f *fakePipeline) Listening() bool                 { return f.listening }
func (f *fakePipeline) Status() pipeline.Status {
	return pipeline.Status{
		Listening:      f.listening,
		Message:        "listening",
		Transcript:     "launch an airstrike (final, confidence: 0.92)",
		Classification: "classification: air-support, confidence: 0.92",
	}
}

func newTestRouter(p *fakePipeline) (http.Handler, *events.Bus) {
	bus := events.NewBus()
	return NewRouter(app.New(config.Defaults(), bus, p)), bus
}

func do(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouter_Health(t *testing.T) {
	p := &fakePipeline{}
	h, _ := newTestRouter(p)

	tests := []struct {
		name      string
		listening bool
		path      string
		expected  int
	}{
		{"liveness idle", false, "/v1/liveness", http.StatusOK},
		{"readiness idle", false, "/v1/readiness", http.StatusServiceUnavailable},
		{"readiness listening", true, "/v1/readiness", http.StatusOK},
		{"metrics", false, "/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.listening = tt.listening
			if rec := do(h, http.MethodGet, tt.path); rec.Code != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}

func TestRouter_Status(t *testing.T) {
	h, _ := newTestRouter(&fakePipeline{listening: true})

	rec := do(h, http.MethodGet, "/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st pipeline.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Listening || st.Classification != "classification: air-support, confidence: 0.92" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestRouter_Listening(t *testing.T) {
	p := &fakePipeline{}
	h, _ := newTestRouter(p)

	if rec := do(h, http.MethodPost, "/v1/listening/start"); rec.Code != http.StatusOK || !p.listening {
		t.Errorf("expected listening after start, got code %d listening %v", rec.Code, p.listening)
	}
	if rec := do(h, http.MethodPost, "/v1/listening/stop"); rec.Code != http.StatusOK || p.listening {
		t.Errorf("expected stopped, got code %d listening %v", rec.Code, p.listening)
	}
}

func TestRouter_TriggerEvent(t *testing.T) {
	h, bus := newTestRouter(&fakePipeline{})

	got := 0
	bus.Register(events.OnAirSupportRequestFromKeyboard, events.NewReceiver(func(name string, args ...any) { got++ }))

	rec := do(h, http.MethodPost, "/v1/events/"+events.OnAirSupportRequestFromKeyboard)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if got != 1 {
		t.Errorf("expected receiver to run once, got %d", got)
	}
	var body struct {
		Event     string `json:"event"`
		Receivers int    `json:"receivers"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Receivers != 1 || body.Event != events.OnAirSupportRequestFromKeyboard {
		t.Errorf("unexpected response %+v", body)
	}

	if rec := do(h, http.MethodGet, "/v1/events/x"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", rec.Code)
	}
}
