// Package watson is a small JSON-over-HTTP client shared by the Watson REST
// services (Assistant, Language Translator).
package watson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrRemoteService is returned when the service answers with an error status.
var ErrRemoteService = errors.New("watson service error")

// TokenSource supplies bearer tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client calls one Watson service instance.
type Client struct {
	baseURL string
	version string
	tokens  TokenSource
	http    *http.Client
}

// NewClient creates a client for the service at baseURL. version is sent as
// the mandatory version query parameter.
func NewClient(baseURL, version string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		version: version,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a service URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// errorBody is the error envelope Watson services return.
type errorBody struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// PostJSON posts in as JSON to path and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	if !c.Enabled() {
		return errors.New("watson service is not configured")
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if c.version != "" {
		q := u.Query()
		q.Set("version", c.version)
		u.RawQuery = q.Encode()
	}

	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 300 {
		var eb errorBody
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &eb) == nil && eb.Error != "" {
			msg = eb.Error
		}
		return fmt.Errorf("%w: status=%d: %s", ErrRemoteService, resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
