// Package assistant classifies transcripts into intents using a Watson
// Assistant v2 session.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-command-pipeline/internal/config"
	"voice-command-pipeline/internal/observability/logging"
	"voice-command-pipeline/internal/service/auth"
	"voice-command-pipeline/internal/service/watson"
)

// DefaultVersion is the Assistant API version date.
const DefaultVersion = "2019-11-12"

var (
	// ErrNotReady is returned by Classify before a session is established.
	ErrNotReady = errors.New("assistant session not ready")

	// ErrRemoteService is returned when the assistant call fails remotely.
	ErrRemoteService = errors.New("assistant service error")
)

// State is the session setup state.
type State int

const (
	Uninitialized State = iota
	AuthPending
	SessionPending
	Ready
)

func (s State) String() string {
	switch s {
	case AuthPending:
		return "auth_pending"
	case SessionPending:
		return "session_pending"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Intent is the top-ranked classification of a transcript.
type Intent struct {
	Name       string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Poster is the HTTP transport used by the classifier.
type Poster interface {
	PostJSON(ctx context.Context, path string, in, out any) error
}

// Classifier owns one assistant session.
type Classifier struct {
	client       Poster
	assistantID  string
	auth         auth.Readiness
	pollInterval time.Duration
	logger       zerolog.Logger

	mu        sync.RWMutex
	state     State
	sessionID string
}

// New creates a classifier. readiness may be nil when no credentials are needed.
func New(client Poster, assistantID string, readiness auth.Readiness) (*Classifier, error) {
	if strings.TrimSpace(assistantID) == "" {
		return nil, fmt.Errorf("%w: assistant ID", config.ErrConfigurationMissing)
	}
	return &Classifier{
		client:       client,
		assistantID:  assistantID,
		auth:         readiness,
		pollInterval: 100 * time.Millisecond,
		logger:       logging.WithComponent("assistant"),
	}, nil
}

// NewFromConfig builds a classifier from the assistant configuration.
func NewFromConfig(cfg config.AssistantConfig, tokens watson.TokenSource, readiness auth.Readiness) (*Classifier, error) {
	version := cfg.Version
	if version == "" {
		version = DefaultVersion
	}
	return New(watson.NewClient(cfg.ServiceURL, version, tokens, 0), cfg.AssistantID, readiness)
}

// State returns the current setup state.
func (c *Classifier) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SessionID returns the established session, or "".
func (c *Classifier) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Classifier) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("Assistant state changed")
	}
}

// Connect waits for credentials and creates a session. Calling it again
// restarts setup from AuthPending.
func (c *Classifier) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()
	c.setState(AuthPending)

	if c.auth != nil {
		if err := auth.WaitReady(ctx, c.auth, c.pollInterval); err != nil {
			return err
		}
	}
	c.setState(SessionPending)

	var resp struct {
		SessionID string `json:"session_id"`
	}
	path := "/v2/assistants/" + url.PathEscape(c.assistantID) + "/sessions"
	if err := c.client.PostJSON(ctx, path, nil, &resp); err != nil {
		return fmt.Errorf("%w: create session: %w", ErrRemoteService, err)
	}
	if resp.SessionID == "" {
		return fmt.Errorf("%w: create session returned no session id", ErrRemoteService)
	}

	c.mu.Lock()
	c.sessionID = resp.SessionID
	c.mu.Unlock()
	c.setState(Ready)

	c.logger.Info().Str("sessionId", resp.SessionID).Msg("Assistant session created")
	return nil
}

type messageRequest struct {
	Input struct {
		MessageType string `json:"message_type"`
		Text        string `json:"text"`
	} `json:"input"`
}

type messageResponse struct {
	Output struct {
		Intents []Intent `json:"intents"`
	} `json:"output"`
}

// Classify sends text to the assistant and returns the top intent, or nil
// when the text is empty or no intent matched.
func (c *Classifier) Classify(ctx context.Context, text string) (*Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	c.mu.RLock()
	state, sessionID := c.state, c.sessionID
	c.mu.RUnlock()
	if state != Ready {
		return nil, fmt.Errorf("%w: state %s", ErrNotReady, state)
	}

	var req messageRequest
	req.Input.MessageType = "text"
	req.Input.Text = text

	var resp messageResponse
	path := "/v2/assistants/" + url.PathEscape(c.assistantID) + "/sessions/" + url.PathEscape(sessionID) + "/message"
	if err := c.client.PostJSON(ctx, path, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: message: %w", ErrRemoteService, err)
	}

	if len(resp.Output.Intents) == 0 {
		return nil, nil
	}
	top := resp.Output.Intents[0]
	return &top, nil
}
