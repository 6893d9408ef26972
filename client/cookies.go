package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

// CookieStore is where session cookies outlive the process.
type CookieStore interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
	Remove(ctx context.Context, key string)
}

// storedCookie is the persisted form of one cookie.
type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PersistentJar is a cookie jar that mirrors the cookies of one site into a
// CookieStore, so the refresh credential survives a restart.
type PersistentJar struct {
	mu    sync.Mutex
	jar   *cookiejar.Jar
	site  *url.URL
	store CookieStore
	key   string
}

func newJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// NewPersistentJar restores the cookies saved for site under key.
func NewPersistentJar(ctx context.Context, store CookieStore, key, site string) (*PersistentJar, error) {
	if store == nil {
		return nil, errors.New("cookie store is nil")
	}
	u, err := url.Parse(site)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie site: %w", err)
	}
	jar, err := newJar()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	j := &PersistentJar{jar: jar, site: u, store: store, key: key}

	raw, ok := store.Get(ctx, key)
	if !ok || raw == "" {
		return j, nil
	}
	var saved []storedCookie
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		log.Warn().Err(err).Msg("Ignoring unreadable saved session cookies")
		return j, nil
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, c := range saved {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar.SetCookies(u, cookies)
	return j, nil
}

func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// SetCookies stores the cookies and, when the site's cookies changed, saves them.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)
	if len(cookies) == 0 {
		return
	}
	j.save()
}

// Forget drops every cookie, in memory and in the store.
func (j *PersistentJar) Forget(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if jar, err := newJar(); err == nil {
		j.jar = jar
	}
	j.store.Remove(ctx, j.key)
}

// save must be called with j.mu held. It runs inside the HTTP round trip,
// which carries no context of its own.
func (j *PersistentJar) save() {
	current := j.jar.Cookies(j.site)
	if len(current) == 0 {
		j.store.Remove(context.Background(), j.key)
		return
	}
	saved := make([]storedCookie, 0, len(current))
	for _, c := range current {
		saved = append(saved, storedCookie{Name: c.Name, Value: c.Value})
	}
	raw, err := json.Marshal(saved)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode session cookies")
		return
	}
	j.store.Set(context.Background(), j.key, string(raw))
}

// WithCookieJar replaces the client's in-memory cookie jar.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) error {
		if jar == nil {
			return errors.New("cookie jar is nil")
		}
		c.httpClient.Jar = jar
		return nil
	}
}
