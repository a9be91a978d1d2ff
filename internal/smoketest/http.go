package smoketest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// replyBody mirrors the relay's form response.
type replyBody struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client *http.Client
	origin string
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration, origin string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
		origin: origin,
	}
}

// do sends one request and decodes a JSON reply when there is one.
func (c *HTTPClient) do(ctx context.Context, method, url string, body interface{}) (int, replyBody, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, replyBody{}, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, replyBody{}, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, replyBody{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, replyBody{}, fmt.Errorf("failed to read response: %w", err)
	}
	var reply replyBody
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &reply)
	}
	return resp.StatusCode, reply, nil
}
