// Copyright 2026 The Dott Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/dottapps/auth-gateway/internal/observability/logger"
)

// Config holds client configuration
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration // per-attempt timeout
	MaxAttempts    int           // total attempts, including the first
	MaxBackoff     time.Duration
}

// Client performs HTTP calls against the business backend with bounded
// retry, per-attempt timeouts, and a consistent error taxonomy.
type Client struct {
	baseURL     string
	httpc       *http.Client
	timeout     time.Duration
	maxAttempts uint
	maxBackoff  time.Duration
}

// New creates a backend API client.
func New(cfg Config) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		httpc:       &http.Client{},
		timeout:     timeout,
		maxAttempts: uint(attempts),
		maxBackoff:  maxBackoff,
	}
}

// Response is a completed backend response. Non-2xx statuses are returned
// as *Error instead, so a Response always carries a success status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsJSON reports whether the response body is declared and parseable JSON.
// Backends behind a CDN occasionally answer 200 with an HTML error page;
// those must never be fed to a JSON decoder as session data.
func (r *Response) IsJSON() bool {
	ct := r.Header.Get("Content-Type")
	if ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil && mediaType != "application/json" {
			return false
		}
	}
	return json.Valid(r.Body)
}

// JSON decodes the response body.
func (r *Response) JSON(dest any) error {
	return json.Unmarshal(r.Body, dest)
}

// RequestOption mutates the outbound request before it is sent.
type RequestOption func(*http.Request)

// WithSessionToken attaches the session bearer header. An empty token is a
// no-op: the request then relies on forwarded cookies alone rather than
// being blocked.
func WithSessionToken(token string) RequestOption {
	return func(req *http.Request) {
		if token != "" {
			req.Header.Set("Authorization", "Session "+token)
		}
	}
}

// WithHeader sets an arbitrary header, e.g. forwarded edge metadata.
func WithHeader(key, value string) RequestOption {
	return func(req *http.Request) {
		if value != "" {
			req.Header.Set(key, value)
		}
	}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts)
}

// do runs the request with bounded retry. Network errors, timeouts, and 5xx
// responses are retried with capped exponential backoff; 4xx responses fail
// immediately because client errors are not transient.
func (c *Client) do(ctx context.Context, method, path string, body any, opts []RequestOption) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, &Error{Code: CodeUnknown, Message: "encode request: " + err.Error()}
		}
	}

	attempt := 0
	resp, err := retry.DoWithData(
		func() (*Response, error) {
			attempt++
			r, err := c.attempt(ctx, method, path, payload, opts)
			if err != nil && attempt < int(c.maxAttempts) && IsRetryable(err) {
				slog.WarnContext(ctx, "backend call failed, retrying",
					logger.Component("apiclient"),
					logger.BackendPath(path),
					logger.Attempt(attempt),
					logger.Error(err),
				)
			}
			return r, err
		},
		retry.Attempts(c.maxAttempts),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(c.maxBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// attempt performs one request with its own timeout and classifies the outcome.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, opts []RequestOption) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, &Error{Code: CodeUnknown, Message: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Code:    Classify(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: http.StatusText(resp.StatusCode),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
	}, nil
}

// classifyTransport maps a transport-level failure onto the taxonomy,
// keeping DNS resolution failures distinguishable so the proxy layer can
// answer 503 instead of a generic 500.
func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeTimeout, Message: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Code: CodeTimeout, Message: err.Error()}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Code: CodeUnreachable, Message: err.Error(), DNSFailure: true}
	}
	return &Error{Code: CodeUnreachable, Message: err.Error()}
}
