// Package client is a typed HTTP client for the taskfeed API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds each request when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Headers shared with the server.
const (
	userHeader       = "X-USER-ID"
	truncatedHeader  = "X-Changes-Truncated"
	nextCursorHeader = "X-Changes-Next-Cursor"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsForbidden reports whether err is a 403 response.
func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden
}

// Config holds client configuration.
type Config struct {
	// BaseURL of the server, e.g. http://localhost:8080
	BaseURL string

	// UserID sent as the identity header (0 = none)
	UserID int64

	// Timeout per request (default: DefaultTimeout)
	Timeout time.Duration

	// HTTPClient overrides the transport (default: a new http.Client)
	HTTPClient *http.Client
}

// Client talks to one taskfeed server as one user.
type Client struct {
	baseURL string
	userID  int64
	timeout time.Duration
	http    *http.Client
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		userID:  cfg.UserID,
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
	}
}

// WithUser returns a copy of c that acts as userID.
func (c *Client) WithUser(userID int64) *Client {
	cp := *c
	cp.userID = userID
	return &cp
}

// UserID returns the identity sent with each request.
func (c *Client) UserID() int64 {
	return c.userID
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends one request and decodes a 2xx JSON body into out (if non-nil).
// It returns the response headers for callers that need them.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != 0 {
		req.Header.Set(userHeader, strconv.FormatInt(c.userID, 10))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.Header, fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return resp.Header, nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func idPath(format string, ids ...int64) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return fmt.Sprintf(format, args...)
}
