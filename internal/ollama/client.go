// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeHTTP
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout    = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
)

// IsNotRunning checks if an error indicates the server is not running.
func IsNotRunning(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNotRunning
	}
	return errors.Is(err, ErrNotRunning)
}

// IsHTTPError checks if an error is a non-2xx response from the chat endpoint.
func IsHTTPError(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == ErrTypeHTTP
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	// Note: Uses explicit IPv4 address instead of localhost to avoid IPv6
	// resolution issues on some platforms
	BaseURL string

	// Timeout for non-streaming requests (default: 30s). The streaming chat
	// request carries no timeout at all: token arrival is unbounded and only
	// context cancellation stops it.
	Timeout time.Duration

	// DefaultModel to use if none specified (default: "llava:7b")
	DefaultModel string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      "http://127.0.0.1:11434",
		Timeout:      30 * time.Second,
		DefaultModel: "llava:7b",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
//
// The Client is safe for concurrent use.
//
// Example:
//
//	client := ollama.NewClient()
//	if err := client.CheckRunning(ctx); err != nil {
//	    log.Fatal("Ollama not available:", err)
//	}
//	err := client.ChatStream(ctx, req, func(ev ollama.Event) { ... })
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "llava:7b"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// SetBaseURL points the client at a different endpoint. The active endpoint
// may change between probe cycles but never mid-stream; an open stream keeps
// the URL it was started with.
func (c *Client) SetBaseURL(url string) {
	c.config.BaseURL = strings.TrimRight(url, "/")
}

// DefaultModel returns the configured default model.
func (c *Client) DefaultModel() string {
	return c.config.DefaultModel
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that the server is reachable. Any 2xx response from
// the root path counts as healthy.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from Ollama: " + resp.Status,
		}
	}

	return nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all available models from the server.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "failed to list models: " + resp.Status,
		}
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}

	return result.Models, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream sends a streaming chat request and calls the callback for each
// decoded event, synchronously and in arrival order.
//
// A non-2xx response is surfaced as an ErrTypeHTTP ClientError carrying the
// full error body (or a synthesized "HTTP <status>" message when the body is
// empty); there is no automatic retry. The read loop stops promptly once a
// done record is decoded, even if the server has more to say.
//
// Cancelling ctx aborts the transport read; the resulting error wraps
// context.Canceled so callers can treat it as a clean stop.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, callback EventCallback) error {
	if req.Model == "" {
		req.Model = c.config.DefaultModel
	}
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	// Streaming client carries no timeout: generation waits are unbounded and
	// only context cancellation stops them. TLS is not a concern here; the
	// server is local HTTP.
	streamClient := &http.Client{}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := streamClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.readErrorBody(resp)
	}

	return c.processStream(ctx, resp.Body, callback)
}

// readErrorBody drains a failed response into an ErrTypeHTTP error. The raw
// body text is preserved; a bare status line is synthesized when it is empty.
func (c *Client) readErrorBody(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = "HTTP " + strconv.Itoa(resp.StatusCode)
	} else {
		// Prefer the server's structured error field when present.
		var se serverError
		if err := json.Unmarshal(data, &se); err == nil && se.Error != "" {
			msg = se.Error
		}
	}
	return &ClientError{Type: ErrTypeHTTP, Message: msg}
}

// processStream feeds the response body through the stream decoder chunk by
// chunk until a done event, end of stream, or cancellation.
func (c *Client) processStream(ctx context.Context, body io.Reader, callback EventCallback) error {
	decoder := NewStreamDecoder()
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range decoder.Feed(buf[:n]) {
				callback(ev)
			}
			if decoder.Done() {
				// Cease reading promptly; remaining chunks are ignored.
				return nil
			}
		}

		if err != nil {
			if err == io.EOF {
				for _, ev := range decoder.Finish() {
					callback(ev)
				}
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err}
		}
	}
}

// Helper to drain and close a response body so the connection can be reused.
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, r)
	r.Close()
}
