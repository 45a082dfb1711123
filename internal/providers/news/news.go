// Package news adapts a news/sentiment provider and, when the provider
// offers no aggregate sentiment field, falls back to a local lexicon-based
// scorer over recent headlines.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quantleaf/optrader/internal/providers/httpclient"
	"github.com/quantleaf/optrader/internal/providers/result"
)

// Headline is one normalized news item.
type Headline struct {
	Title     string
	Summary   string
	Source    string
	Timestamp int64
}

// Client adapts a news/sentiment provider.
type Client struct {
	http   *httpclient.Client
	apiKey string
	log    zerolog.Logger
}

// New builds a news provider Client.
func New(http *httpclient.Client, apiKey string, log zerolog.Logger) *Client {
	return &Client{http: http, apiKey: apiKey, log: log.With().Str("provider", "news").Logger()}
}

// IsConfigured reports whether credentials are present.
func (c *Client) IsConfigured() bool { return c.apiKey != "" }

type wireSentiment struct {
	BullishPercent   *float64 `json:"bullish_percent"`
	CompanyNewsScore *float64 `json:"company_news_score"`
	Headlines        []struct {
		Title     string `json:"title"`
		Summary   string `json:"summary"`
		Source    string `json:"source"`
		Timestamp int64  `json:"timestamp"`
	} `json:"headlines"`
}

// Sentiment is the normalized sentiment reading, scale [0,100], 50 neutral.
type Sentiment struct {
	Score     float64
	Source    string // "provider_aggregate" | "local_headline_analysis" | "default"
	Headlines []Headline
}

// GetSentiment prefers the provider's own aggregate bullish-percent or
// company-news score; otherwise it analyzes up to 15 recent headlines
// locally; otherwise it returns the neutral default of 50.
func (c *Client) GetSentiment(ctx context.Context, ticker string) result.Result[Sentiment] {
	if !c.IsConfigured() {
		return result.Ok(Sentiment{Score: 50, Source: "default"})
	}

	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	resp, err := c.http.Get(ctx, "/v1/news/sentiment", url.Values{"symbol": {symbol}})
	if err != nil {
		return result.Err[Sentiment](err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 403 {
		return result.Forbidden[Sentiment]("sentiment tier not entitled")
	}
	if resp.StatusCode != 200 {
		return result.Unavailable[Sentiment]("sentiment provider unavailable")
	}

	var wire wireSentiment
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return result.Err[Sentiment](fmt.Errorf("decode sentiment: %w", err))
	}

	headlines := make([]Headline, 0, len(wire.Headlines))
	for _, h := range wire.Headlines {
		headlines = append(headlines, Headline{Title: h.Title, Summary: h.Summary, Source: h.Source, Timestamp: h.Timestamp})
	}

	if wire.BullishPercent != nil {
		return result.Ok(Sentiment{Score: clamp(*wire.BullishPercent, 0, 100), Source: "provider_aggregate", Headlines: headlines})
	}
	if wire.CompanyNewsScore != nil {
		return result.Ok(Sentiment{Score: clamp(*wire.CompanyNewsScore, 0, 100), Source: "provider_aggregate", Headlines: headlines})
	}

	if len(headlines) > 0 {
		score := AnalyzeHeadlines(headlines)
		return result.Ok(Sentiment{Score: score, Source: "local_headline_analysis", Headlines: headlines})
	}

	return result.Ok(Sentiment{Score: 50, Source: "default"})
}

// bullishWords/bearishWords is a small fixed lexicon; this is a coarse
// local fallback, not a replacement for a real NLP sentiment model.
var bullishWords = []string{
	"beat", "beats", "surge", "soar", "rally", "upgrade", "outperform",
	"record", "growth", "strong", "bullish", "gain", "gains", "exceeds",
}
var bearishWords = []string{
	"miss", "misses", "plunge", "slump", "downgrade", "underperform",
	"weak", "bearish", "loss", "losses", "lawsuit", "investigation", "cuts",
}

// AnalyzeHeadlines scores up to the 15 most recent headlines with a small
// bullish/bearish lexicon, returned on a [0,100] scale with 50 neutral.
func AnalyzeHeadlines(headlines []Headline) float64 {
	n := len(headlines)
	if n > 15 {
		headlines = headlines[:15]
		n = 15
	}
	if n == 0 {
		return 50
	}

	var net int
	for _, h := range headlines {
		text := strings.ToLower(h.Title + " " + h.Summary)
		for _, w := range bullishWords {
			if strings.Contains(text, w) {
				net++
			}
		}
		for _, w := range bearishWords {
			if strings.Contains(text, w) {
				net--
			}
		}
	}

	// Scale net hits across headlines into a [0,100] score centered at 50;
	// +-2 average hits per headline saturates the scale.
	avg := float64(net) / float64(n)
	return clamp(50+avg*25, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
