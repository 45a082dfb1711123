// Package fundamentals adapts an independent fundamentals/rating provider:
// return-on-equity, gross margin for the quality gate, and an analyst
// rating score for the scanner's additive fundamentals scoring step.
package fundamentals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleaf/optrader/internal/clientcache"
	"github.com/quantleaf/optrader/internal/providers/httpclient"
	"github.com/quantleaf/optrader/internal/providers/result"
)

// cacheTTL bounds how long a fundamentals lookup is reused across a scan
// window. Fundamentals move on a quarterly cadence, so a generous TTL costs
// nothing in staleness but saves a round trip for every ticker re-scanned
// within the window.
const cacheTTL = 6 * time.Hour

// Data is the normalized fundamentals record used by the quality gate and
// the fundamentals scoring step.
type Data struct {
	Symbol         string
	ReturnOnEquity float64 // fraction, e.g. 0.18 for 18%
	GrossMargin    float64 // fraction, e.g. 0.42 for 42%
	// Rating is the provider's 1..5 analyst rating scale (1 = strong buy).
	Rating int
}

// Client adapts a fundamentals/rating provider.
type Client struct {
	http   *httpclient.Client
	apiKey string
	log    zerolog.Logger
	cache  *clientcache.Cache
}

// New builds a fundamentals provider Client.
func New(http *httpclient.Client, apiKey string, log zerolog.Logger) *Client {
	return &Client{http: http, apiKey: apiKey, log: log.With().Str("provider", "fundamentals").Logger()}
}

// WithCache attaches a TTL-scoped response cache so repeat lookups for the
// same ticker within cacheTTL skip the network entirely. Optional: a Client
// with no cache attached behaves exactly as before.
func (c *Client) WithCache(cache *clientcache.Cache) *Client {
	c.cache = cache
	return c
}

// IsConfigured reports whether credentials are present.
func (c *Client) IsConfigured() bool { return c.apiKey != "" }

type wireInfo map[string]interface{}

// GetFundamentals fetches ROE, gross margin and analyst rating for ticker.
func (c *Client) GetFundamentals(ctx context.Context, ticker string) result.Result[Data] {
	if !c.IsConfigured() {
		return result.Unavailable[Data]("provider not configured")
	}

	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	cacheKey := "fundamentals:" + symbol

	if c.cache != nil {
		if cached, ok := c.cache.Get(cacheKey); ok {
			var data Data
			if err := json.Unmarshal(cached, &data); err == nil {
				return result.Ok(data)
			}
		}
	}

	resp, err := c.http.Get(ctx, "/v1/fundamentals", url.Values{"symbol": {symbol}})
	if err != nil {
		return result.Err[Data](err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 403:
		return result.Forbidden[Data]("fundamentals tier not entitled")
	case 429:
		return result.Unavailable[Data]("rate limited")
	}
	if resp.StatusCode != 200 {
		return result.Err[Data](fmt.Errorf("fundamentals provider status %d", resp.StatusCode))
	}

	var info wireInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return result.Err[Data](fmt.Errorf("decode fundamentals: %w", err))
	}

	data := Data{
		Symbol:         ticker,
		ReturnOnEquity: getFloat64(info, "returnOnEquity"),
		GrossMargin:    getFloat64(info, "grossMargins"),
		Rating:         getIntOrDefault(info, "analystRating", 3),
	}

	if c.cache != nil {
		if encoded, err := json.Marshal(data); err == nil {
			_ = c.cache.Set(cacheKey, encoded, cacheTTL)
		}
	}

	return result.Ok(data)
}

// RatingScore maps the 1..5 analyst rating scale to the scanner's additive
// fundamentals-score bonus: {+15, +10, 0}.
func RatingScore(rating int) float64 {
	switch rating {
	case 1:
		return 15
	case 2:
		return 10
	default:
		return 0
	}
}

func getFloat64(m wireInfo, key string) float64 {
	if val, ok := m[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
	}
	return 0
}

func getIntOrDefault(m wireInfo, key string, def int) int {
	if val, ok := m[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return def
}
