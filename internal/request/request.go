// Package request implements the resilient HTTP engine underneath every
// resource call: one logical request with exponential-backoff retries,
// returning either a fully-buffered body or a live stream handle.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Defaults for the retry policy.
const (
	DefaultRetries        = 3
	DefaultBackoffInitial = 100 * time.Millisecond
	DefaultBackoffMax     = time.Second
)

// Error is a terminal request failure carrying the last observed HTTP
// status and, when the response body was JSON, its decoded error payload.
type Error struct {
	Status  int
	Message string
	Body    []byte
	Detail  map[string]any
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("request failed (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("request failed: %s", e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// Headers are defaults applied to every request. Per-call headers win.
	Headers http.Header
	// Retries is the number of retries after the first attempt.
	// Negative means zero retries.
	Retries int
	// BackoffInitial is the delay before the first retry; it doubles after
	// each failed attempt up to BackoffMax.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client issues logical requests against a base URL with retry semantics.
type Client struct {
	cfg   Config
	base  *url.URL
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client, filling unset config fields with defaults.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("request: invalid base url: %w", err)
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	} else if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = DefaultBackoffInitial
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if cfg.HTTPClient == nil {
		// No client-level timeout: streams stay open indefinitely and are
		// bounded by the caller's context instead.
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{cfg: cfg, base: base, sleep: sleepCtx}, nil
}

// Spec describes one logical request.
type Spec struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-marshaled when non-nil. Mutually exclusive with RawBody.
	Body any
	// RawBody is sent as-is with ContentType; no JSON content-type default
	// is injected for it (binary/form payloads).
	RawBody     io.Reader
	ContentType string
	Headers     http.Header
	// Stream requests a live body handle instead of a buffered one.
	Stream bool
}

// Response is the outcome of a successful request. Exactly one of Body and
// Stream is populated, matching Spec.Stream.
type Response struct {
	Status int
	Header http.Header
	// Body is the fully-read response body (nil for streaming requests).
	Body []byte
	// Stream is the open response body (nil for buffered requests).
	// The caller owns it and must close it.
	Stream io.ReadCloser
}

// JSON decodes the buffered body into v.
func (r *Response) JSON(v any) error {
	if r.Body == nil {
		return fmt.Errorf("request: no buffered body to decode")
	}
	return json.Unmarshal(r.Body, v)
}

// Do performs the request described by spec, retrying transient failures
// with exponential backoff. It returns exactly one of: a Response, or an
// error. Context cancellation aborts the in-flight attempt and any pending
// backoff sleep.
func (c *Client) Do(ctx context.Context, spec Spec) (*Response, error) {
	attempts := c.cfg.Retries + 1
	delay := c.cfg.BackoffInitial

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
			if delay > c.cfg.BackoffMax {
				delay = c.cfg.BackoffMax
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		final := attempt == attempts-1
		resp, retryable, err := c.attempt(ctx, spec, final)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		c.cfg.Logger.Debug("request attempt failed",
			"method", spec.Method, "path", spec.Path,
			"attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// attempt performs a single HTTP exchange. retryable reports whether the
// failure is eligible for another attempt. On non-final failed attempts the
// body is drained and closed so the connection can be reused.
func (c *Client) attempt(ctx context.Context, spec Spec, final bool) (*Response, bool, error) {
	req, err := c.build(ctx, spec)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, &Error{Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if !final {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, true, &Error{Status: resp.StatusCode, Message: resp.Status}
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, true, decodeError(resp.StatusCode, resp.Status, body)
	}

	if spec.Stream {
		if resp.Body == nil || resp.Body == http.NoBody {
			return nil, false, &Error{Status: resp.StatusCode, Message: "response has no readable body"}
		}
		return &Response{Status: resp.StatusCode, Header: resp.Header, Stream: resp.Body}, false, nil
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &Error{Status: resp.StatusCode, Message: fmt.Sprintf("read body: %s", err)}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, false, nil
}

func (c *Client) build(ctx context.Context, spec Spec) (*http.Request, error) {
	u := *c.base
	u.Path = c.base.Path + spec.Path
	if len(spec.Query) > 0 {
		u.RawQuery = spec.Query.Encode()
	}

	var body io.Reader
	jsonBody := false
	switch {
	case spec.RawBody != nil:
		body = spec.RawBody
	case spec.Body != nil:
		data, err := json.Marshal(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("request: marshal body: %w", err)
		}
		body = bytes.NewReader(data)
		jsonBody = true
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("request: build request: %w", err)
	}

	// Precedence: per-call headers > client defaults > content-type default.
	if jsonBody {
		req.Header.Set("Content-Type", "application/json")
	} else if spec.ContentType != "" {
		req.Header.Set("Content-Type", spec.ContentType)
	}
	for k, vs := range c.cfg.Headers {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	for k, vs := range spec.Headers {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	return req, nil
}

// decodeError builds the terminal Error for an exhausted attempt budget,
// decoding a JSON error payload when the body carries one.
func decodeError(status int, statusText string, body []byte) *Error {
	e := &Error{Status: status, Message: statusText, Body: body}
	var payload map[string]any
	if json.Unmarshal(body, &payload) == nil {
		e.Detail = payload
		for _, key := range []string{"error", "message"} {
			if msg, ok := payload[key].(string); ok && msg != "" {
				e.Message = msg
				break
			}
		}
	} else if len(body) > 0 {
		e.Message = string(body)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
