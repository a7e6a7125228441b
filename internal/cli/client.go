package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/me/tradebot/pkg/model"
)

// Client talks to the tradebot REST API and unwraps its response envelope.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a Client. Streams are not bound by the request timeout.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// requestTimeout bounds every non-streaming call.
const requestTimeout = 30 * time.Second

type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// StatusError is returned for a non-2xx answer that carried no APIError.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		c.Logger.Debug("api request body", "path", path, "bytes", len(data))
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// call sends one request and decodes the envelope. An APIError in the
// envelope is returned as the error, together with the envelope.
func (c *Client) call(ctx context.Context, method, path string, body any) (*envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.Logger.Debug("api call", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode}
		}
		return nil, fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if env.Error != nil {
		return &env, env.Error
	}
	if resp.StatusCode >= 300 {
		return &env, &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}
	return &env, nil
}

// Get fetches path and decodes the envelope's data into out.
func (c *Client) Get(ctx context.Context, path string, out any) (*envelope, error) {
	return c.into(ctx, http.MethodGet, path, nil, out)
}

// Post sends body as JSON and decodes the envelope's data into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) (*envelope, error) {
	return c.into(ctx, http.MethodPost, path, body, out)
}

// Delete issues a DELETE and decodes the envelope's data into out.
func (c *Client) Delete(ctx context.Context, path string, out any) (*envelope, error) {
	return c.into(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) into(ctx context.Context, method, path string, body, out any) (*envelope, error) {
	env, err := c.call(ctx, method, path, body)
	if err != nil {
		return env, err
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return env, nil
}

// Stream opens a server-sent event stream. The caller closes the body;
// canceling ctx ends the stream.
func (c *Client) Stream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", path, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error != nil {
		return nil, env.Error
	}
	return nil, &StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode}
}
