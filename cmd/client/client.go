package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"taskflow/cmd/internal/auth/session"
)

const (
	refreshPath = "/api/auth/refresh-token"
	loginPath   = "/api/auth/login"
	logoutPath  = "/api/auth/logout"

	defaultRotateTimeout = 10 * time.Second
)

// Client talks to one taskflow server. Credentials live in the cookie jar;
// bearer tracking is optional.
type Client struct {
	base *url.URL
	http *http.Client
	log  *slog.Logger

	trackBearer   bool
	rotateTimeout time.Duration
	onEnded       func(error)

	flight singleflight.Group

	mu     sync.Mutex
	bearer *oauth2.Token
	ended  bool
}

type Option func(*Client)

// WithHTTPClient supplies the transport. A client without a jar gets a new
// in-memory one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithBearer also sends the access credential from login and refresh
// bodies as Authorization: Bearer, until it expires.
func WithBearer() Option {
	return func(c *Client) { c.trackBearer = true }
}

// OnSessionEnded is called once each time rotation fails.
func OnSessionEnded(fn func(error)) Option {
	return func(c *Client) { c.onEnded = fn }
}

// WithRotateTimeout bounds one refresh rotation.
func WithRotateTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.rotateTimeout = d
		}
	}
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: base url %q needs scheme and host", baseURL)
	}

	c := &Client{
		base:          u,
		http:          &http.Client{Timeout: 30 * time.Second},
		log:           slog.Default(),
		rotateTimeout: defaultRotateTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc := *c.http
		hc.Jar = jar
		c.http = &hc
	}
	return c, nil
}

// URL resolves an API path against the base URL.
func (c *Client) URL(path string) string {
	return c.base.JoinPath(path).String()
}

// SessionEnded reports whether the last rotation failed. A successful
// Login clears it.
func (c *Client) SessionEnded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// Do sends req. A 401 carrying credential_missing is renewed at most once
// per request: one shared rotation, then one replay marked retried. Bodies
// are replayed through req.GetBody; requests without it are not retried.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(c.withBearer(req))
	if err != nil {
		return nil, err
	}
	if !c.shouldRenew(req, resp) {
		return resp, nil
	}

	if err := c.rotate(req.Context()); err != nil {
		c.log.Info("client.session.ended", "path", req.URL.Path, "err", err)
		return resp, nil
	}

	retry, err := replay(req)
	if err != nil {
		return resp, nil
	}
	drain(resp)
	return c.Do(retry)
}

func (c *Client) shouldRenew(req *http.Request, resp *http.Response) bool {
	if resp.StatusCode != http.StatusUnauthorized {
		return false
	}
	if resp.Header.Get(session.HeaderAuthError) != session.CodeCredentialMissing {
		return false
	}
	if isRetried(req.Context()) {
		return false
	}
	switch req.URL.Path {
	case refreshPath, loginPath:
		return false
	}
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// rotate runs one refresh rotation. Concurrent callers share the in-flight
// call and its result.
func (c *Client) rotate(ctx context.Context) error {
	ch := c.flight.DoChan("rotate", func() (any, error) {
		// Detached so one caller's cancellation cannot fail the others.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.rotateTimeout)
		defer cancel()
		return nil, c.doRotate(rctx)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *Client) doRotate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(refreshPath), http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: refresh: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(resp)
		// Only a rejected refresh credential ends the session; 5xx leaves
		// the slot valid for the next attempt.
		if resp.StatusCode == http.StatusUnauthorized {
			c.endSession(apiErr)
			return fmt.Errorf("%w: %w", ErrSessionEnded, apiErr)
		}
		return apiErr
	}

	var body struct {
		Session sessionBody `json:"session"`
	}
	if err := decodeJSON(resp.Body, &body); err != nil {
		return fmt.Errorf("client: refresh: %w", err)
	}
	c.setBearer(body.Session)
	return nil
}

func (c *Client) endSession(cause error) {
	c.mu.Lock()
	c.ended = true
	c.bearer = nil
	fn := c.onEnded
	c.mu.Unlock()

	if fn != nil {
		fn(cause)
	}
}

type sessionBody struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

func (c *Client) setBearer(s sessionBody) {
	if !c.trackBearer || s.AccessToken == "" {
		return
	}
	c.mu.Lock()
	c.bearer = &oauth2.Token{
		AccessToken: s.AccessToken,
		TokenType:   "Bearer",
		Expiry:      s.AccessExpiresAt,
	}
	c.mu.Unlock()
}

// withBearer returns req, or a copy carrying the tracked bearer. An expired
// bearer is not sent, the same way the browser drops an expired cookie.
func (c *Client) withBearer(req *http.Request) *http.Request {
	if !c.trackBearer || req.Header.Get("Authorization") != "" {
		return req
	}
	c.mu.Lock()
	tok := c.bearer
	c.mu.Unlock()
	if !tok.Valid() {
		return req
	}
	out := req.Clone(req.Context())
	tok.SetAuthHeader(out)
	return out
}

type retriedKey struct{}

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

func replay(req *http.Request) (*http.Request, error) {
	retry := req.Clone(markRetried(req.Context()))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return retry, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
