package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Get fetches path and decodes the JSON response into out (which may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// Post sends in as JSON to path and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, in, out)
}

func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPatch, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	req := &Request{Method: method, Path: path}
	if in != nil {
		// Pre-encoded payloads are sent verbatim.
		switch v := in.(type) {
		case json.RawMessage:
			req.Body = v
		case []byte:
			req.Body = v
		default:
			body, err := json.Marshal(in)
			if err != nil {
				return fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
			}
			req.Body = body
		}
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
