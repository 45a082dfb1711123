// Package httpclient wraps hashicorp/go-retryablehttp with this project's
// own rate limiter and retry-kind classification, so every provider adapter
// shares one admission-controlled, retrying transport.
package httpclient

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/quantleaf/optrader/internal/ratelimit"
)

// Client is a rate-limited, retrying HTTP client for one upstream provider.
type Client struct {
	http    *retryablehttp.Client
	limiter *ratelimit.Limiter
	baseURL string
	log     zerolog.Logger
}

// Config configures one provider's Client.
type Config struct {
	BaseURL      string
	MaxCalls     int
	Period       time.Duration
	RetryMax     int
	RequestTimeout time.Duration
	Logger       zerolog.Logger
}

// New builds a Client sharing a rate limiter sized per the provider's own
// published ceiling.
func New(cfg Config) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.CheckRetry = checkRetry
	if cfg.RequestTimeout > 0 {
		retryClient.HTTPClient.Timeout = cfg.RequestTimeout
	}

	return &Client{
		http:    retryClient,
		limiter: ratelimit.New(cfg.MaxCalls, cfg.Period),
		baseURL: cfg.BaseURL,
		log:     cfg.Logger,
	}
}

// checkRetry retries on connection faults, timeouts and 5xx, never on 4xx,
// matching the project's retry-kind classification.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if resp.StatusCode == 0 {
		return false, nil
	}
	if resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// Get performs a rate-limited GET against path relative to the client's
// base URL, with the given query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	if _, err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	c.applyRateHeaders(resp)
	return resp, nil
}

// Do performs a rate-limited request built by the caller (used for POST/DELETE
// methods such as order placement and cancellation).
func (c *Client) Do(req *retryablehttp.Request) (*http.Response, error) {
	if _, err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	c.applyRateHeaders(resp)
	return resp, nil
}

// NewRequest is a convenience constructor bound to the client's base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*retryablehttp.Request, error) {
	return retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
}

func (c *Client) applyRateHeaders(resp *http.Response) {
	remaining := parseIntHeader(resp.Header.Get("X-RateLimit-Remaining"))
	limit := parseIntHeader(resp.Header.Get("X-RateLimit-Limit"))
	if remaining >= 0 && limit > 0 {
		c.limiter.UpdateFromHeaders(remaining, limit)
	}
}

func parseIntHeader(v string) int {
	if v == "" {
		return -1
	}
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
