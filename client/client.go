// Package client is the single gateway the app uses to talk to the backend.
// It attaches the bearer token, refreshes it once when the backend answers
// 401, and replays every request that hit the expired token.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// RefreshPath is the refresh endpoint, relative to the base URL.
	RefreshPath = "/auth/refresh"
	// DefaultTimeout bounds every network call the client makes.
	DefaultTimeout = 15 * time.Second
)

// TokenSource holds the current access token. Token returns "" when none is known.
type TokenSource interface {
	Token(ctx context.Context) string
	Save(ctx context.Context, token string)
	Clear(ctx context.Context)
}

// TokenRefresher performs the network refresh exchange and returns the new access token.
type TokenRefresher interface {
	PerformTokenRefresh(ctx context.Context) (string, error)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokens      TokenSource
	refresher   TokenRefresher
	refreshPath string
	userAgent   string

	state refreshState
}

type Option func(*Client) error

// New creates a client for the API rooted at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: must be an absolute http(s) URL", baseURL)
	}

	jar, err := newJar()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: DefaultTimeout, Jar: jar},
		refreshPath: RefreshPath,
		userAgent:   "unihub",
	}
	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	if c.tokens == nil {
		c.tokens = &memoryTokens{}
	}
	if c.refresher == nil {
		c.refresher = &endpointRefresher{c: c}
	}
	return c, nil
}

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is added when it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client is nil")
		}
		if hc.Jar == nil {
			hc.Jar = c.httpClient.Jar
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient.Timeout = d
		return nil
	}
}

// WithTokenSource sets where the access token is read from and written to.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) error {
		if ts == nil {
			return errors.New("token source is nil")
		}
		c.tokens = ts
		return nil
	}
}

// WithRefresher replaces the default refresh endpoint exchange.
func WithRefresher(r TokenRefresher) Option {
	return func(c *Client) error {
		if r == nil {
			return errors.New("refresher is nil")
		}
		c.refresher = r
		return nil
	}
}

// WithRefreshPath moves the refresh endpoint.
func WithRefreshPath(path string) Option {
	return func(c *Client) error {
		if path == "" {
			return errors.New("refresh path is empty")
		}
		c.refreshPath = path
		return nil
	}
}

// WithUserAgent sets the User-Agent header of outgoing requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// BaseURL returns the API root all relative paths are joined to.
func (c *Client) BaseURL() string { return c.baseURL }

// Tokens exposes the token source the client attaches from.
func (c *Client) Tokens() TokenSource { return c.tokens }

// resolve joins path to the base URL unless it is already absolute.
func (c *Client) resolve(path string) string {
	if isAbsoluteURL(path) {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) isRefreshURL(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.TrimRight(u.Path, "/"), strings.TrimRight(c.refreshPath, "/"))
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// memoryTokens is the fallback TokenSource when nothing durable is configured.
type memoryTokens struct {
	mu    sync.RWMutex
	token string
}

func (m *memoryTokens) Token(context.Context) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *memoryTokens) Save(_ context.Context, token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *memoryTokens) Clear(context.Context) {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}
