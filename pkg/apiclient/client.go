// Package apiclient provides a client for the TurboPipe health API.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marmos91/turbopipe/pkg/api/handlers"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 10 * time.Second

// Client queries a running TurboPipe API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL (e.g. "http://127.0.0.1:9090").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// WithHTTPClient returns a copy of the client using hc.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	return &Client{baseURL: c.baseURL, httpClient: hc}
}

// envelope mirrors handlers.Response with a typed payload.
type envelope[T any] struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      T         `json:"data"`
	Error     string    `json:"error,omitempty"`
}

// get decodes the response envelope for path. The payload is decoded for
// error statuses too, since unhealthy responses still carry data.
func get[T any](ctx context.Context, c *Client, path string) (*envelope[T], error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope[T]
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		if decodeErr == nil {
			apiErr.Status = env.Status
			if env.Error != "" {
				apiErr.Message = env.Error
			}
			return &env, apiErr
		}
		return nil, apiErr
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return &env, nil
}

// Liveness checks that the server responds on /health.
func (c *Client) Liveness(ctx context.Context) error {
	_, err := get[map[string]string](ctx, c, "/health")
	return err
}

// Engine fetches the engine status. When the server reports the engine
// unhealthy, the status is returned together with an *APIError.
func (c *Client) Engine(ctx context.Context) (*handlers.EngineHealth, error) {
	env, err := get[*handlers.EngineHealth](ctx, c, "/health/engine")
	if env == nil {
		return nil, err
	}
	return env.Data, err
}
