package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/circuitbreaker"
	"github.com/fieldline/copilot/internal/tracing"
)

// BackingClient is a breaker-protected JSON client for one backing CRM
// service. Adapters share the shape but each gets its own instance so
// one failing service cannot trip another's breaker.
type BackingClient struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// NewBackingClient builds a client for the service at baseURL. An empty
// baseURL returns nil, which adapters treat as "no backing service
// configured" and serve demo data.
func NewBackingClient(name, baseURL string, timeout time.Duration, logger *zap.Logger) *BackingClient {
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BackingClient{
		baseURL: baseURL,
		http:    circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: timeout}, name, logger),
		logger:  logger,
	}
}

// Get fetches path with query params and decodes the JSON body into out.
func (c *BackingClient) Get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

// Post sends body as JSON to path and decodes the response into out.
func (c *BackingClient) Post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// Delete issues a DELETE to path.
func (c *BackingClient) Delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, nil)
}

func (c *BackingClient) do(req *http.Request, out interface{}) error {
	tracing.InjectTraceparent(req.Context(), req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backing service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Ping probes the service health endpoint.
func (c *BackingClient) Ping(ctx context.Context) error {
	return c.Get(ctx, "/health", nil, nil)
}

// BreakerState reports the client's circuit breaker state.
func (c *BackingClient) BreakerState() circuitbreaker.State {
	return c.http.State()
}
