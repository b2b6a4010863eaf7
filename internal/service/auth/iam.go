// Package auth exchanges IBM Cloud API keys for IAM bearer tokens and exposes
// whether a usable token is available.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-command-pipeline/internal/config"
	"voice-command-pipeline/internal/observability/logging"
)

// DefaultURL is the public IAM token endpoint.
const DefaultURL = "https://iam.cloud.ibm.com/identity/token"

const (
	grantType = "urn:ibm:params:oauth:grant-type:apikey"

	// refresh this long before the token expires
	refreshMargin = 60 * time.Second
	retryDelay    = 5 * time.Second
)

// ErrNotReady is returned by Token before the first successful exchange.
var ErrNotReady = errors.New("token not ready")

// IAM fetches and caches an IAM access token for one API key.
// It is safe for concurrent use.
type IAM struct {
	apiKey string
	url    string
	http   *http.Client
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	token   string
	expires time.Time
}

// NewIAM creates an authenticator. An empty url selects DefaultURL.
func NewIAM(apiKey, iamURL string) (*IAM, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: IAM API key", config.ErrConfigurationMissing)
	}
	if iamURL == "" {
		iamURL = DefaultURL
	}
	return &IAM{
		apiKey: apiKey,
		url:    iamURL,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logging.WithComponent("iam"),
		now:    time.Now,
	}, nil
}

// Ready reports whether a non-expired token is cached.
func (a *IAM) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token != "" && a.now().Before(a.expires)
}

// Token returns the cached token, refreshing it when close to expiry.
func (a *IAM) Token(ctx context.Context) (string, error) {
	a.mu.RLock()
	token, expires := a.token, a.expires
	a.mu.RUnlock()

	if token != "" && a.now().Add(refreshMargin).Before(expires) {
		return token, nil
	}
	if err := a.Refresh(ctx); err != nil {
		if token != "" && a.now().Before(expires) {
			return token, nil
		}
		return "", fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Expiration  int64  `json:"expiration"`
}

// Refresh exchanges the API key for a new token.
func (a *IAM) Refresh(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("iam status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("decode iam response: %w", err)
	}
	if tr.AccessToken == "" {
		return errors.New("iam response has no access token")
	}

	expires := a.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if tr.ExpiresIn <= 0 && tr.Expiration > 0 {
		expires = time.Unix(tr.Expiration, 0)
	}

	a.mu.Lock()
	a.token = tr.AccessToken
	a.expires = expires
	a.mu.Unlock()

	a.logger.Debug().Time("expires", expires).Msg("IAM token refreshed")
	return nil
}

// Run keeps the token fresh until ctx is cancelled.
func (a *IAM) Run(ctx context.Context) {
	for {
		wait := retryDelay
		if err := a.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn().Err(err).Dur("retryIn", wait).Msg("IAM token refresh failed")
		} else {
			a.mu.RLock()
			wait = a.expires.Sub(a.now()) - refreshMargin
			a.mu.RUnlock()
			if wait < retryDelay {
				wait = retryDelay
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
