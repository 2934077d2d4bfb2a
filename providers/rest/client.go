// Package rest is the shared HTTP plumbing for provider adapters:
// JSON requests with auth headers, status mapping into the integration
// error taxonomy, and Retry-After handling for rate limits.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/unionhall/integration-hub/models"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	provider models.Provider
	baseURL  string
	http     *http.Client
	logger   *zap.Logger
	auth     func(*http.Request)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.auth = func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

func WithBasicAuth(user, pass string) Option {
	return func(c *Client) {
		c.auth = func(req *http.Request) {
			req.SetBasicAuth(user, pass)
		}
	}
}

func WithHeaderAuth(name, value string) Option {
	return func(c *Client) {
		c.auth = func(req *http.Request) {
			req.Header.Set(name, value)
		}
	}
}

func New(provider models.Provider, baseURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		baseURL:  baseURL,
		http:     &http.Client{Timeout: defaultTimeout},
		logger:   logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	return c.do(req, out)
}

func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	if c.auth != nil {
		c.auth(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.NewConnectionError(c.provider, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return models.NewRateLimitError(c.provider, retryAfter(resp))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return models.NewAuthenticationError(c.provider,
			fmt.Sprintf("%s %s returned %d", req.Method, req.URL.Path, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("provider request failed",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode))

		return models.NewConnectionError(c.provider,
			fmt.Sprintf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, snippet), nil)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return models.NewConnectionError(c.provider, "decoding response", err)
	}

	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	return time.Minute
}
