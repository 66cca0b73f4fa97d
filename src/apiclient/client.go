// Package apiclient is the request pipeline every console component uses to
// talk to the shop backend. It attaches the bearer token current at send time
// and reports 401 answers to the session before handing the error back.
package apiclient

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

	"github.com/khabaroff/shop-admin-console/src/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxBodySize caps how much of a backend answer is buffered
const maxBodySize = 4 << 20

// DefaultTimeout applies when no timeout is configured
const DefaultTimeout = 15 * time.Second

// Credentials is the client's view of the session.
//
// Unauthorized is invoked synchronously, before the failing call returns, when
// a request that carried a token receives 401; rejected is the token that was
// sent. Implementations must not send requests through a hooking client from
// inside Unauthorized.
type Credentials interface {
	Token() string
	Unauthorized(ctx context.Context, rejected string)
}

// Client sends JSON requests to the backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	logger     zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient uses a copy of hc as the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			cp := *hc
			c.httpClient = &cp
		}
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the component logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for baseURL. creds may be nil for a client that never
// authenticates.
func New(baseURL string, creds Credentials, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: missing host", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		creds:      creds,
		logger:     log.With().Str("component", "apiclient").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type requestOptions struct {
	skipUnauthorizedHook bool
	anonymous            bool
	token                string
}

// RequestOption adjusts a single call
type RequestOption func(*requestOptions)

// WithoutUnauthorizedHook keeps a 401 answer from reaching the session. The
// session's own logout and check calls use it so a rejected token cannot
// re-enter the logout path.
func WithoutUnauthorizedHook() RequestOption {
	return func(o *requestOptions) {
		o.skipUnauthorizedHook = true
	}
}

// Anonymous sends the call without a bearer token. A 401 on an anonymous call
// says nothing about the session, so the hook is skipped too.
func Anonymous() RequestOption {
	return func(o *requestOptions) {
		o.anonymous = true
		o.skipUnauthorizedHook = true
	}
}

// WithToken sends the call with an explicit token instead of the session's.
// Used while bootstrapping a persisted token that is not installed yet; the
// hook is skipped because the session does not hold that token.
func WithToken(token string) RequestOption {
	return func(o *requestOptions) {
		o.token = token
		o.skipUnauthorizedHook = true
	}
}

// URL returns the absolute backend URL for path
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, ro requestOptions) (*http.Request, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, RequestIDFrom(ctx))

	token := ro.token
	if token == "" && !ro.anonymous && c.creds != nil {
		// Read at send time: the token may have changed since construction
		token = c.creds.Token()
	}
	if ro.anonymous {
		token = ""
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, token, nil
}

// send performs the round trip and inspects the status before the caller sees it
func (c *Client) send(req *http.Request, ro requestOptions, sentToken string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(req.Method, metrics.StatusClass(0)).Inc()
		c.logger.Warn().
			Err(err).
			Str("request_id", req.Header.Get(RequestIDHeader)).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Msg("backend request failed")
		return nil, &Error{Method: req.Method, Path: req.URL.Path, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}

	metrics.BackendRequests.WithLabelValues(req.Method, metrics.StatusClass(resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("request_id", req.Header.Get(RequestIDHeader)).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend request")

	if resp.StatusCode == http.StatusUnauthorized && sentToken != "" && !ro.skipUnauthorizedHook && c.creds != nil {
		c.logger.Warn().
			Str("request_id", req.Header.Get(RequestIDHeader)).
			Str("path", req.URL.Path).
			Msg("backend rejected token, forcing logout")
		c.creds.Unauthorized(req.Context(), sentToken)
	}
	return resp, nil
}

// Do sends in as JSON (when non-nil) and decodes a 2xx body into out (when
// non-nil). Non-2xx answers come back as *Error.
func (c *Client) Do(ctx context.Context, method, path string, in, out any, opts ...RequestOption) error {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, sentToken, err := c.newRequest(ctx, method, path, body, ro)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(req, ro, sentToken)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &Error{Method: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Method: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return nil
}

// Get is Do with GET and no body
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post is Do with POST
func (c *Client) Post(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, in, out, opts...)
}

// Put is Do with PUT
func (c *Client) Put(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, in, out, opts...)
}

// Patch is Do with PATCH
func (c *Client) Patch(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, path, in, out, opts...)
}

// Forward relays a raw request to the backend and returns the raw answer,
// whatever its status. The caller closes the body. Token injection and the
// 401 hook apply as for Do.
func (c *Client) Forward(ctx context.Context, method, path, rawQuery string, header http.Header, body io.Reader) (*http.Response, error) {
	target := path
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	req, sentToken, err := c.newRequest(ctx, method, target, body, requestOptions{})
	if err != nil {
		return nil, err
	}
	for _, h := range []string{"Content-Type", "Accept", "Accept-Language"} {
		if v := header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	return c.send(req, requestOptions{}, sentToken)
}

// IsTransport reports whether err is a failure to reach the backend
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
