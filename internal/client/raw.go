package client

import (
	"context"
	"io"
	"net/http"
)

// GetRaw performs a raw GET to path and returns the response body as a
// string, for endpoints that don't fit the typed API — in practice just
// /health.
func (c *Client) GetRaw(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	return string(body), err
}

// Health calls GET /health on whatever this Client points at.
func (c *Client) Health(ctx context.Context) (string, error) {
	return c.GetRaw(ctx, "/health")
}
