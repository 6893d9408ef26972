package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Request describes one logical API call. Its body is kept as bytes so the
// call can be rebuilt and sent again after a token refresh.
type Request struct {
	Method string
	// Path is relative to the base URL, or a full http(s) URL.
	Path   string
	Body   []byte
	Header http.Header
	// NoAuth sends the request without a bearer token and skips the refresh protocol.
	NoAuth bool
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// StatusError is returned for any response with status >= 400. The response
// is passed through untouched; only 401 is acted upon by the client.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       []byte
	Response   *Response
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected HTTP status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if len(e.Body) > 0 {
		msg += ": " + string(e.Body[:min(len(e.Body), 200)])
	}
	return msg
}

// IsUnauthorized reports whether err carries a 401 response.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

// attempt tracks one logical request across its original send and its single replay.
type attempt struct {
	req       *Request
	url       string
	requestID string
	retried   bool
}

// createRequest builds an HTTP request and attaches the bearer token when there is one.
func (c *Client) createRequest(ctx context.Context, att *attempt, token string) (*http.Request, error) {
	var body io.Reader
	if att.req.Body != nil {
		body = bytes.NewReader(att.req.Body)
	}
	req, err := http.NewRequestWithContext(ctx, att.req.Method, att.url, body)
	if err != nil {
		log.Error().Err(err).Str("method", att.req.Method).Str("url", att.url).Msg("Failed to create HTTP request object")
		return nil, err
	}
	for k, vs := range att.req.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if att.req.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", att.requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// send transmits att once with the given token.
func (c *Client) send(ctx context.Context, att *attempt, token string) (*Response, error) {
	req, err := c.createRequest(ctx, att, token)
	if err != nil {
		return nil, err
	}
	return c.sendRequest(req)
}

// sendRequest performs req and reads the whole body.
func (c *Client) sendRequest(req *http.Request) (*Response, error) {
	log.Debug().Str("method", req.Method).Str("url", req.URL.String()).
		Str("request_id", req.Header.Get("X-Request-ID")).Msg("Sending HTTP request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("HTTP request failed")
		return nil, err
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        req.URL.String(),
	}
	if resp.StatusCode >= 400 {
		log.Debug().Str("method", req.Method).Str("url", out.URL).Int("status", resp.StatusCode).Msg("HTTP request returned error status")
		return out, &StatusError{
			StatusCode: resp.StatusCode,
			Method:     req.Method,
			URL:        out.URL,
			Body:       body,
			Response:   out,
		}
	}
	log.Debug().Str("method", req.Method).Str("url", out.URL).Int("status", resp.StatusCode).Msg("HTTP request successful")
	return out, nil
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Str("url", resp.Request.URL.String()).Msg("Failed to read response body")
		return nil, err
	}
	return body, nil
}

// Do sends req. Any response other than a first 401 is returned as is; a 401
// goes through the refresh protocol and the caller sees the replay's result.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	att := &attempt{
		req:       req,
		url:       c.resolve(req.Path),
		requestID: uuid.NewString(),
	}

	token := ""
	if !req.NoAuth {
		token = c.tokens.Token(ctx)
	}
	resp, err := c.send(ctx, att, token)
	if err == nil || req.NoAuth || !IsUnauthorized(err) {
		return resp, err
	}
	return c.handleUnauthorized(ctx, att, token, resp, err)
}
