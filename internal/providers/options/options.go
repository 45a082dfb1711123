// Package options adapts an options-data/IV provider into the project's
// normalized domain.Chain/domain.Quote shapes, applying symbol
// canonicalization and splitting any provider "wide" row (call and put
// fields on one strike row) into separate call/put contracts.
package options

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleaf/optrader/internal/domain"
	"github.com/quantleaf/optrader/internal/providers/httpclient"
	"github.com/quantleaf/optrader/internal/providers/result"
)

// aliasTable resolves index-ticker aliases to the provider's own symbol
// convention.
var aliasTable = map[string]string{
	"SPX":  "$SPX.X",
	"NDX":  "$NDX.X",
	"VIX":  "$VIX.X",
	"RUT":  "$RUT.X",
}

// Canonicalize strips common quote prefixes and resolves index aliases.
func Canonicalize(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	t = strings.TrimPrefix(t, "$")
	t = strings.TrimPrefix(t, "NASDAQ:")
	t = strings.TrimPrefix(t, "NYSE:")
	if alias, ok := aliasTable[t]; ok {
		return alias
	}
	return t
}

// Client adapts an options/IV provider.
type Client struct {
	http      *httpclient.Client
	apiKey    string
	log       zerolog.Logger
}

// New builds an options provider Client. An empty apiKey means
// IsConfigured reports false.
func New(http *httpclient.Client, apiKey string, log zerolog.Logger) *Client {
	return &Client{http: http, apiKey: apiKey, log: log.With().Str("provider", "options").Logger()}
}

// IsConfigured reports whether credentials are present, matching this
// is_configured() predicate.
func (c *Client) IsConfigured() bool { return c.apiKey != "" }

type wireQuote struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Volume int64   `json:"volume"`
}

// GetQuote fetches the live underlying quote. Idempotent: retried by the
// underlying httpclient on transport-level faults.
func (c *Client) GetQuote(ctx context.Context, ticker string) result.Result[domain.Quote] {
	if !c.IsConfigured() {
		return result.Unavailable[domain.Quote]("provider not configured")
	}

	symbol := Canonicalize(ticker)
	resp, err := c.http.Get(ctx, "/v1/markets/quotes", url.Values{"symbols": {symbol}})
	if err != nil {
		return result.Err[domain.Quote](err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 403:
		return result.Forbidden[domain.Quote]("quote tier not entitled")
	case 429:
		return result.Unavailable[domain.Quote]("rate limited")
	}
	if resp.StatusCode != 200 {
		return result.Err[domain.Quote](fmt.Errorf("options provider quote status %d", resp.StatusCode))
	}

	var wire wireQuote
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return result.Err[domain.Quote](fmt.Errorf("decode quote: %w", err))
	}

	return result.Ok(domain.Quote{
		Symbol: ticker,
		Price:  wire.Last,
		Volume: wire.Volume,
		Bid:    wire.Bid,
		Ask:    wire.Ask,
	})
}

type wireContract struct {
	Symbol            string  `json:"symbol"`
	Description       string  `json:"description"`
	OptionType        string  `json:"option_type"` // "call" | "put" | "" (wide row)
	Strike            float64 `json:"strike"`
	Expiration        string  `json:"expiration_date"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	Last              float64 `json:"last"`
	Volume            int64   `json:"volume"`
	OpenInterest      int64   `json:"open_interest"`
	ImpliedVolatility float64 `json:"implied_volatility"`
	Delta             float64 `json:"delta"`
	Gamma             float64 `json:"gamma"`
	Theta             float64 `json:"theta"`
	Vega              float64 `json:"vega"`
	Rho               float64 `json:"rho"`
	// wide-row fields, populated only when OptionType is empty
	CallBid, CallAsk, CallLast float64
	PutBid, PutAsk, PutLast    float64
}

// GetChain fetches and standardizes the option chain for ticker into
// domain.Chain, splitting wide rows into separate call/put contracts and
// sign-correcting put greeks.
func (c *Client) GetChain(ctx context.Context, ticker string) result.Result[domain.Chain] {
	if !c.IsConfigured() {
		return result.Unavailable[domain.Chain]("provider not configured")
	}

	symbol := Canonicalize(ticker)
	resp, err := c.http.Get(ctx, "/v1/markets/options/chains", url.Values{"symbol": {symbol}})
	if err != nil {
		return result.Err[domain.Chain](err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 403:
		return result.Forbidden[domain.Chain]("chain tier not entitled")
	case 429:
		return result.Unavailable[domain.Chain]("rate limited")
	}
	if resp.StatusCode != 200 {
		return result.Err[domain.Chain](fmt.Errorf("options provider chain status %d", resp.StatusCode))
	}

	var wire []wireContract
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return result.Err[domain.Chain](fmt.Errorf("decode chain: %w", err))
	}

	chain := domain.NewChain()
	for _, row := range wire {
		for _, contract := range splitRow(row) {
			chain.Add(contract)
		}
	}
	return result.Ok(chain)
}

// splitRow turns one wire row into one or two normalized contracts,
// splitting a combined call/put "wide" row when OptionType is absent.
func splitRow(row wireContract) []domain.Contract {
	expiry, _ := time.Parse("2006-01-02", row.Expiration)
	dte := int(time.Until(expiry).Hours() / 24)

	mk := func(side domain.OptionType, bid, ask, last float64) domain.Contract {
		delta, rho := row.Delta, row.Rho
		if side == domain.Put {
			delta, rho = -absF(delta), -absF(rho)
		} else {
			delta, rho = absF(delta), absF(rho)
		}
		return domain.Contract{
			PutCall:           side,
			Symbol:            row.Symbol,
			Description:       row.Description,
			Bid:               bid,
			Ask:               ask,
			Last:              last,
			Mark:              (bid + ask) / 2,
			TotalVolume:       row.Volume,
			OpenInterest:      row.OpenInterest,
			VolatilityPercent: row.ImpliedVolatility,
			Greeks: domain.Greeks{
				Delta: delta,
				Gamma: row.Gamma,
				Theta: row.Theta,
				Vega:  row.Vega,
				Rho:   rho,
			},
			StrikePrice:      row.Strike,
			ExpirationDate:   expiry,
			DaysToExpiration: dte,
		}
	}

	switch strings.ToLower(row.OptionType) {
	case "call":
		return []domain.Contract{mk(domain.Call, row.Bid, row.Ask, row.Last)}
	case "put":
		return []domain.Contract{mk(domain.Put, row.Bid, row.Ask, row.Last)}
	default:
		return []domain.Contract{
			mk(domain.Call, row.CallBid, row.CallAsk, row.CallLast),
			mk(domain.Put, row.PutBid, row.PutAsk, row.PutLast),
		}
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ProviderSkewFields is the provider's own pre-computed skew inputs,
// parsed from its analytics response when present.
type ProviderSkewFields struct {
	Slope float64
}

// GetSkew fetches the provider's own skew analytics, when entitled.
func (c *Client) GetSkew(ctx context.Context, ticker string) result.Result[ProviderSkewFields] {
	if !c.IsConfigured() {
		return result.Unavailable[ProviderSkewFields]("provider not configured")
	}
	symbol := Canonicalize(ticker)
	resp, err := c.http.Get(ctx, "/v1/markets/options/skew", url.Values{"symbol": {symbol}})
	if err != nil {
		return result.Err[ProviderSkewFields](err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 403 {
		return result.Forbidden[ProviderSkewFields]("skew analytics not entitled")
	}
	if resp.StatusCode != 200 {
		return result.Unavailable[ProviderSkewFields]("skew analytics unavailable")
	}

	var payload struct {
		Slope string `json:"slope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return result.Err[ProviderSkewFields](err)
	}
	slope, _ := strconv.ParseFloat(payload.Slope, 64)
	return result.Ok(ProviderSkewFields{Slope: slope})
}
