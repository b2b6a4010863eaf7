// Package translate calls the Watson Language Translator v3 API.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"voice-command-pipeline/internal/config"
	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/service/auth"
	"voice-command-pipeline/internal/service/watson"
)

const (
	DefaultVersion = "2019-11-12"
	DefaultModel   = "en-es"
)

var (
	// ErrNotReady is returned while credentials are still being acquired.
	ErrNotReady = errors.New("translator not ready")

	// ErrRemoteService is returned when the translation call fails remotely.
	ErrRemoteService = errors.New("translator service error")
)

// Poster is the HTTP transport used by the translator.
type Poster interface {
	PostJSON(ctx context.Context, path string, in, out any) error
}

// Translator translates transcripts with a fixed model.
type Translator struct {
	client Poster
	model  string
	auth   auth.Readiness
	logger zerolog.Logger
}

// New creates a translator for model. readiness may be nil.
func New(client Poster, model string, readiness auth.Readiness) *Translator {
	if model == "" {
		model = DefaultModel
	}
	return &Translator{
		client: client,
		model:  model,
		auth:   readiness,
		logger: logging.WithComponent("translator"),
	}
}

// NewFromConfig builds a translator from the translator configuration.
func NewFromConfig(cfg config.TranslatorConfig, tokens watson.TokenSource, readiness auth.Readiness) *Translator {
	version := cfg.Version
	if version == "" {
		version = DefaultVersion
	}
	return New(watson.NewClient(cfg.ServiceURL, version, tokens, 0), cfg.Model, readiness)
}

// Model returns the translation model identifier.
func (t *Translator) Model() string {
	return t.model
}

type translateRequest struct {
	Text    []string `json:"text"`
	ModelID string   `json:"model_id"`
}

type translateResponse struct {
	Translations []struct {
		Translation string `json:"translation"`
	} `json:"translations"`
	WordCount      int `json:"word_count"`
	CharacterCount int `json:"character_count"`
}

// Translate returns the first translation of text. Empty text yields "" and
// no error.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if t.auth != nil && !t.auth.Ready() {
		return "", ErrNotReady
	}

	var resp translateResponse
	req := translateRequest{Text: []string{text}, ModelID: t.model}
	if err := t.client.PostJSON(ctx, "/v3/translate", req, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRemoteService, err)
	}
	if len(resp.Translations) == 0 {
		return "", nil
	}

	t.logger.Debug().
		Str("model", t.model).
		Int("words", resp.WordCount).
		Int("characters", resp.CharacterCount).
		Msg("Translation received")
	return resp.Translations[0].Translation, nil
}
