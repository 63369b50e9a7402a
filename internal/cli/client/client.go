package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aerosense-dev/aerosense/internal/cli/nav"
)

// maxErrorBody caps how much of an error response is read
const maxErrorBody = 1 << 20

// Credentials supplies the bearer token and reacts to its rejection
type Credentials interface {
	// Token returns the current bearer token, or "" when anonymous
	Token() string
	// InvalidateToken drops the session if token is still the current one
	// and reports whether anything was cleared.
	InvalidateToken(token string) bool
}

// Client is the request gateway: every call to the backend goes through Send
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	navigator  nav.Navigator
	logger     zerolog.Logger
}

// New creates a new API client
func New(baseURL string, creds Credentials, navigator nav.Navigator, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		creds:     creds,
		navigator: navigator,
		logger:    logger,
	}
}

// SetHTTPClient sets a custom HTTP client
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// BaseURL returns the backend root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send performs one request. body and out are JSON-encoded and decoded
// when non-nil. A 401 on a request that carried a token invalidates the
// session and redirects to the sign-in page before Send returns.
func (c *Client) Send(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var token string
	if c.creds != nil {
		token = c.creds.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("method", method).
			Str("endpoint", path).
			Str("request_id", requestID).
			Msg("Request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		httpErr := readHTTPError(resp, method, path)

		c.logger.Error().
			Str("method", method).
			Str("endpoint", path).
			Int("status", httpErr.Status).
			Str("message", httpErr.Message).
			Str("request_id", requestID).
			Msg("Request rejected")

		if httpErr.Status == http.StatusUnauthorized && token != "" {
			c.handleUnauthorized(token)
		}
		return httpErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		c.logger.Error().
			Err(err).
			Str("method", method).
			Str("endpoint", path).
			Int("status", resp.StatusCode).
			Msg("Failed to decode response")
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// handleUnauthorized is the global forced-logout policy. Only the call that
// actually clears the session redirects, so concurrent 401s flip it once.
func (c *Client) handleUnauthorized(token string) {
	if c.creds == nil || !c.creds.InvalidateToken(token) {
		return
	}
	c.logger.Warn().Msg("Bearer token rejected, session cleared")
	if c.navigator != nil {
		c.navigator.Navigate(nav.RouteSignIn, nil)
	}
}

func readHTTPError(resp *http.Response, method, path string) *HTTPError {
	httpErr := &HTTPError{Status: resp.StatusCode, Method: method, Path: path}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return httpErr
	}

	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &envelope) == nil {
		httpErr.Message = envelope.Message
	}
	return httpErr
}
