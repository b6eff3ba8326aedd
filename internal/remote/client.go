package remote

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
	"github.com/rbright/yakutan/internal/settings"
)

// ErrUnavailable marks calls that never produced a response.
var ErrUnavailable = errors.New("service unavailable")

// StatusError is a non-2xx reply without a decodable body.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	SessionID  string
	HTTPClient *http.Client
}

// Client calls the service API. It is safe for concurrent use.
type Client struct {
	base      string
	session   string
	http      *http.Client
	requestID func() string
}

// New builds a client rooted at BaseURL (for example http://127.0.0.1:5001/api).
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("service base URL is empty")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	session := strings.TrimSpace(opts.SessionID)
	if session == "" {
		session = uuid.NewString()
	}

	return &Client{
		base:      base,
		session:   session,
		http:      httpClient,
		requestID: uuid.NewString,
	}, nil
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	return c.base
}

// Status reads whether the service is running.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &out, false)
	return out, err
}

// Config reads the service's current configuration.
func (c *Client) Config(ctx context.Context) (settings.Configuration, error) {
	return c.configAt(ctx, "/config")
}

// Defaults reads the service's default configuration.
func (c *Client) Defaults(ctx context.Context) (settings.Configuration, error) {
	return c.configAt(ctx, "/config/defaults")
}

func (c *Client) configAt(ctx context.Context, path string) (settings.Configuration, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw, false); err != nil {
		return settings.Configuration{}, err
	}
	return settings.Unmarshal(raw)
}

// SetConfig pushes a full configuration snapshot.
func (c *Client) SetConfig(ctx context.Context, cfg settings.Configuration) (Result, error) {
	var out Result
	err := c.do(ctx, http.MethodPost, "/config", cfg, &out, true)
	return out, err
}

// Start starts the service with the given credentials.
func (c *Client) Start(ctx context.Context, keys settings.CredentialSet) (Result, error) {
	var out Result
	err := c.do(ctx, http.MethodPost, "/service/start", StartRequest{APIKeys: keys}, &out, true)
	return out, err
}

// Stop stops the service.
func (c *Client) Stop(ctx context.Context) (Result, error) {
	var out Result
	err := c.do(ctx, http.MethodPost, "/service/stop", nil, &out, true)
	return out, err
}

// Restart restarts the service.
func (c *Client) Restart(ctx context.Context) (Result, error) {
	var out Result
	err := c.do(ctx, http.MethodPost, "/service/restart", nil, &out, true)
	return out, err
}

// CheckCredential asks the service to format-check a DashScope key.
func (c *Client) CheckCredential(ctx context.Context, key string) (CredentialCheck, error) {
	var out CredentialCheck
	err := c.do(ctx, http.MethodPost, "/check-api-key", CheckRequest{APIKey: key}, &out, true)
	return out, err
}

// InputDevices lists audio input devices.
func (c *Client) InputDevices(ctx context.Context) (DeviceList, error) {
	var out DeviceList
	err := c.do(ctx, http.MethodGet, "/audio/input-devices", nil, &out, false)
	return out, err
}

// Environment reports which optional credentials the service process sees.
func (c *Client) Environment(ctx context.Context) (Environment, error) {
	var out Environment
	err := c.do(ctx, http.MethodGet, "/env", nil, &out, false)
	return out, err
}

// do performs one JSON round trip. When lenient is set, a non-2xx reply whose
// body decodes is returned as a normal result so the caller sees the
// service's message_id and message.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, lenient bool) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", c.requestID())
	req.Header.Set("X-Panel-Session", c.session)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, errors.Join(ErrUnavailable, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, errors.Join(ErrUnavailable, err))
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok && !lenient {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: snippet(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		if !ok {
			return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: snippet(data)}
		}
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func snippet(data []byte) string {
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
