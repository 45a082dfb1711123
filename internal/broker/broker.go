// Package broker implements a normalized gateway over a Tradier-shaped
// broker API: market data, order placement (single-leg and OCO bracket),
// cancellation and account surfaces. Response quirks (dict-vs-list for
// single items, the literal string "null" for empty collections) are
// absorbed at the edge so callers only ever see Go slices.
package broker

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/quantleaf/optrader/internal/errs"
	"github.com/quantleaf/optrader/internal/ratelimit"
)

// Environment is immutable per Client instance; sandbox and live tokens
// are never interchangeable.
type Environment string

const (
	Sandbox Environment = "SANDBOX"
	Live    Environment = "LIVE"
)

const (
	sandboxBaseURL = "https://sandbox.tradier.com/v1"
	liveBaseURL    = "https://api.tradier.com/v1"

	orderConfirmDelay      = 1 * time.Second
	orderConfirmMaxRetries = 3
	orderConfirmRetryDelay = 1 * time.Second

	requestTimeout = 30 * time.Second
)

// Config constructs a Client bound to one account in one environment.
type Config struct {
	Environment Environment
	AccessToken string
	AccountID   string
	Logger      zerolog.Logger
}

// Client is a rate-limited, retrying gateway to one broker account. The
// environment and account id are fixed for the life of the instance —
// switching environments means constructing a new Client.
type Client struct {
	env         Environment
	baseURL     string
	accessToken string
	accountID   string
	http        *retryablehttp.Client
	limiter     *ratelimit.Limiter
	log         zerolog.Logger
}

// New builds a Client for the given environment, sharing one 50-call/min
// limiter and a retry policy that retries 429/500/502/503 twice — the
// same ceiling the reference broker keeps below Tradier's own published
// sandbox/live limits.
func New(cfg Config) *Client {
	baseURL := sandboxBaseURL
	if cfg.Environment == Live {
		baseURL = liveBaseURL
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.CheckRetry = checkRetry
	retryClient.HTTPClient.Timeout = requestTimeout

	return &Client{
		env:         cfg.Environment,
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		accountID:   cfg.AccountID,
		http:        retryClient,
		limiter:     ratelimit.New(50, time.Minute),
		log:         cfg.Logger,
	}
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true, nil
	default:
		return false, nil
	}
}

func (c *Client) request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if _, err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.KindTimeout, fmt.Sprintf("%s %s timed out", method, path), ctx.Err())
		}
		return nil, errs.Wrap(errs.KindProviderUnavailable, fmt.Sprintf("%s %s failed", method, path), err)
	}

	if err := c.checkResponse(resp, method, path); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (c *Client) checkResponse(resp *http.Response, method, path string) error {
	if resp.StatusCode < 400 {
		return nil
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return errs.AuthError(string(c.env), fmt.Sprintf("authentication failed (%s): token may be invalid or expired", c.env))
	case http.StatusTooManyRequests:
		return errs.New(errs.KindRateLimited, "rate limited by broker despite local admission control")
	case http.StatusServiceUnavailable:
		return errs.New(errs.KindProviderUnavailable, "broker unavailable (maintenance or outage)")
	default:
		return errs.New(errs.KindProviderTransient, fmt.Sprintf("broker error %d: %s %s", resp.StatusCode, method, path))
	}
}
