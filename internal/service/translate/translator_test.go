package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-command-pipeline/internal/config"
	"voice-command-pipeline/internal/service/auth"
	"voice-command-pipeline/internal/service/watson"
)

func newTranslatorServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if r.URL.Path != "/v3/translate" {
			t.Errorf("expected path /v3/translate, got %s", r.URL.Path)
		}
		var req translateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ModelID != "en-es" {
			t.Errorf("expected model en-es, got %s", req.ModelID)
		}
		if len(req.Text) != 1 {
			t.Errorf("expected one text, got %d", len(req.Text))
			return
		}
		switch req.Text[0] {
		case "fail":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":400,"error":"Unable to translate"}`))
		case "nothing":
			w.Write([]byte(`{"translations":[]}`))
		default:
			w.Write([]byte(`{"translations":[{"translation":"lanzar un ataque aereo"}],"word_count":3,"character_count":19}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranslator_Translate(t *testing.T) {
	calls := 0
	srv := newTranslatorServer(t, &calls)
	tr := NewFromConfig(config.TranslatorConfig{ServiceURL: srv.URL}, nil, nil)

	if tr.Model() != DefaultModel {
		t.Errorf("expected default model %s, got %s", DefaultModel, tr.Model())
	}

	tests := []struct {
		name    string
		text    string
		want    string
		wantErr error
	}{
		{name: "translated", text: "launch an airstrike", want: "lanzar un ataque aereo"},
		{name: "no translations", text: "nothing", want: ""},
		{name: "remote error", text: "fail", wantErr: ErrRemoteService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.Translate(context.Background(), tt.text)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				if !errors.Is(err, watson.ErrRemoteService) {
					t.Errorf("expected wrapped watson.ErrRemoteService, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTranslator_EmptyText(t *testing.T) {
	calls := 0
	srv := newTranslatorServer(t, &calls)
	tr := NewFromConfig(config.TranslatorConfig{ServiceURL: srv.URL, Model: "en-es"}, nil, nil)

	got, err := tr.Translate(context.Background(), "  ")
	if err != nil || got != "" {
		t.Errorf("expected empty result and no error, got %q %v", got, err)
	}
	if calls != 0 {
		t.Errorf("expected no remote calls, got %d", calls)
	}
}

func TestTranslator_NotReady(t *testing.T) {
	calls := 0
	srv := newTranslatorServer(t, &calls)
	tr := NewFromConfig(config.TranslatorConfig{ServiceURL: srv.URL}, nil, auth.Static(""))

	if _, err := tr.Translate(context.Background(), "hello"); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}
