package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNoAccessToken is returned when a token response carries no access_token.
	ErrNoAccessToken = errors.New("response does not contain an access token")
	// ErrRefreshFailed wraps every error produced by a failed refresh.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// refreshState is the client's single-flight record. At most one refresh is
// in flight; everyone else parks a continuation in pending.
type refreshState struct {
	mu         sync.Mutex
	refreshing bool
	pending    []func(token string)
	// gen counts finished refreshes.
	gen uint64
}

// join parks a continuation and returns the channel it delivers on.
// "" on the channel means the refresh failed. Must be called with mu held.
func (s *refreshState) join() <-chan string {
	ch := make(chan string, 1)
	s.pending = append(s.pending, func(token string) { ch <- token })
	return ch
}

// finish resets the state and then resumes every parked continuation in FIFO
// order. The queue is swapped out under the lock, so a 401 that arrives while
// the continuations run starts (or joins) the next cycle instead of this one.
func (s *refreshState) finish(token string) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.refreshing = false
	s.gen++
	s.mu.Unlock()

	for _, resume := range pending {
		resume(token)
	}
}

// handleUnauthorized runs the refresh protocol for a request that got 401
// after being sent with sentToken.
func (c *Client) handleUnauthorized(ctx context.Context, att *attempt, sentToken string, resp *Response, origErr error) (*Response, error) {
	if c.isRefreshURL(att.url) {
		log.Warn().Str("url", att.url).Msg("Refresh endpoint rejected the session, clearing access token")
		c.tokens.Clear(context.WithoutCancel(ctx))
		return resp, origErr
	}
	if att.retried {
		return resp, origErr
	}

	for {
		c.state.mu.Lock()
		if c.state.refreshing {
			return c.enqueue(ctx, att, resp, origErr)
		}
		gen := c.state.gen
		c.state.mu.Unlock()

		// The token source may hit the device store, so it is read outside the lock.
		current := c.tokens.Token(ctx)

		c.state.mu.Lock()
		if c.state.refreshing {
			return c.enqueue(ctx, att, resp, origErr)
		}
		if c.state.gen != gen {
			// A refresh finished while the token was read; look again.
			c.state.mu.Unlock()
			continue
		}
		// Another request already refreshed after this one was sent: replay with the new token.
		if current != "" && current != sentToken {
			c.state.mu.Unlock()
			att.retried = true
			return c.send(ctx, att, current)
		}
		c.state.refreshing = true
		c.state.mu.Unlock()
		break
	}

	att.retried = true
	token, err := c.runRefresh(ctx)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, att, token)
}

// enqueue parks att behind the in-flight refresh. Must be called with mu held; releases it.
func (c *Client) enqueue(ctx context.Context, att *attempt, resp *Response, origErr error) (*Response, error) {
	wait := c.state.join()
	c.state.mu.Unlock()
	log.Debug().Str("url", att.url).Msg("Refresh in flight, queueing request")
	return c.resume(ctx, att, wait, resp, origErr)
}

// resume waits for the in-flight refresh and replays att with its token.
func (c *Client) resume(ctx context.Context, att *attempt, wait <-chan string, resp *Response, origErr error) (*Response, error) {
	select {
	case token := <-wait:
		if token == "" {
			return resp, origErr
		}
		att.retried = true
		return c.send(ctx, att, token)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runRefresh performs the refresh call as the leader. The state must already
// be marked refreshing. Followers are resumed before this returns.
func (c *Client) runRefresh(ctx context.Context) (string, error) {
	// Queued callers depend on this call and the store must follow the memory
	// cell, so the leader's cancellation aborts neither the exchange nor the write.
	detached := context.WithoutCancel(ctx)
	token, err := c.refresher.PerformTokenRefresh(detached)
	if err == nil && token == "" {
		err = ErrNoAccessToken
	}
	if err != nil {
		log.Warn().Err(err).Msg("Access token refresh failed, clearing session")
		c.tokens.Clear(detached)
		c.state.finish("")
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	c.tokens.Save(detached, token)
	log.Info().Msg("Access token refreshed")
	c.state.finish(token)
	return token, nil
}

// Refresh forces a token refresh, sharing it with any refresh already in flight.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	c.state.mu.Lock()
	if c.state.refreshing {
		wait := c.state.join()
		c.state.mu.Unlock()
		select {
		case token := <-wait:
			if token == "" {
				return "", ErrRefreshFailed
			}
			return token, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.state.refreshing = true
	c.state.mu.Unlock()
	return c.runRefresh(ctx)
}

// endpointRefresher exchanges the session cookie for a new access token at
// the client's refresh endpoint.
type endpointRefresher struct {
	c *Client
}

func (r *endpointRefresher) PerformTokenRefresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.c.resolve(r.c.refreshPath), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	if r.c.userAgent != "" {
		req.Header.Set("User-Agent", r.c.userAgent)
	}

	resp, err := r.c.sendRequest(req)
	if err != nil {
		return "", err
	}
	return ParseAccessToken(resp.Body)
}

// ParseAccessToken extracts access_token from a login or refresh response.
func ParseAccessToken(body []byte) (string, error) {
	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if result.AccessToken == "" {
		return "", ErrNoAccessToken
	}
	return result.AccessToken, nil
}
