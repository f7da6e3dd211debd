// Package httpclient is the JSON-over-HTTP helper shared by the outbound
// collaborators: the execution engine and the code evaluator.
package httpclient

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
)

const (
	defaultMaxBody = 4 << 20
	userAgent      = "codearena-grader"
)

// ErrDecode marks a 2xx response whose body was not the expected JSON.
var ErrDecode = errors.New("decode response")

// StatusError is returned by DoJSON for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Truncated is set when the body exceeded the client's limit.
	Truncated bool
	Duration  time.Duration
}

func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Client struct {
	baseURL string
	hc      *http.Client
	headers http.Header
	bearer  func() string
	maxBody int64
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Nil is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithHeader sends a static header on every request. Empty values are
// skipped so optional credentials can be passed unconditionally.
func WithHeader(name, value string) Option {
	return func(c *Client) {
		if name != "" && value != "" {
			c.headers.Set(name, value)
		}
	}
}

// WithBearer sets Authorization from token at request time.
func WithBearer(token func() string) Option {
	return func(c *Client) { c.bearer = token }
}

func WithMaxBody(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// New builds a client for baseURL. timeout bounds each request including
// reading the body.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
		headers: http.Header{},
		maxBody: defaultMaxBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Do sends body, when non-empty, as JSON. Any status is returned without
// error; only transport failures are errors.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (Response, error) {
	var out Response
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return out, fmt.Errorf("build request: %w", err)
	}
	for name, values := range c.headers {
		req.Header[name] = values
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != nil {
		if token := c.bearer(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return out, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	out.Header = resp.Header
	out.Body, err = io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	out.Duration = time.Since(start)
	if err != nil {
		return out, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if int64(len(out.Body)) > c.maxBody {
		out.Body = out.Body[:c.maxBody]
		out.Truncated = true
	}
	return out, nil
}

// DoJSON encodes in (skipped when nil), sends it and decodes a 2xx body into
// out (skipped when nil). Non-2xx responses return *StatusError; undecodable
// bodies return an error matching ErrDecode.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out interface{}) (Response, error) {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return Response{}, fmt.Errorf("encode request: %w", err)
		}
	}
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return resp, err
	}
	if !resp.OK() {
		return resp, &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	if out != nil {
		if resp.Truncated {
			return resp, fmt.Errorf("%w: body exceeds %d bytes", ErrDecode, c.maxBody)
		}
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}
	return resp, nil
}
