// Package backend talks to the medication service over HTTPS.
// Every call is a single bounded round trip authenticated with a static
// bearer token. Failures come back as typed errors so callers can show a
// short status line; nothing here retries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	maxBody     = 1 << 20
	previewSize = 1024
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 5 * time.Second

// ErrEmptyBody is returned when a fetch succeeds with no content.
var ErrEmptyBody = errors.New("empty response")

// ErrDecode is returned when a response is not the expected JSON.
var ErrDecode = errors.New("JSON parse failed")

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Describe returns the short text shown on screen for a failed call.
func Describe(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.Error()
	case errors.Is(err, ErrEmptyBody):
		return "Empty response"
	case errors.Is(err, ErrDecode):
		return "JSON parse failed"
	}
	return "Network error"
}

// Config identifies the device to the service.
type Config struct {
	BaseURL  string // including any /api prefix
	Token    string
	DeviceID string
	Timeout  time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	base     string
	token    string
	deviceID string
	http     *http.Client
}

// New creates a Client. A zero Timeout uses DefaultTimeout.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		deviceID: cfg.DeviceID,
		http:     &http.Client{Timeout: timeout},
	}
}

// DeviceID returns the configured device id.
func (c *Client) DeviceID() string {
	return c.deviceID
}

func (c *Client) withDevice(path string) string {
	return path + "?deviceId=" + url.QueryEscape(c.deviceID)
}

// do performs one request and returns the response body of a 2xx reply.
func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	log.Printf("backend: %s %s", method, path)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	logPreview(path, resp.StatusCode, data)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return data, nil
}

func logPreview(path string, status int, body []byte) {
	n := len(body)
	if n > previewSize {
		log.Printf("backend: %s -> %d (%d bytes): %s ... (truncated)", path, status, n, body[:previewSize])
		return
	}
	log.Printf("backend: %s -> %d (%d bytes): %s", path, status, n, body)
}
