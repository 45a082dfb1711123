package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/quantleaf/optrader/internal/analysis/options"
	"github.com/quantleaf/optrader/internal/domain"
)

// GetQuotes fetches current quotes for one or more symbols. Tradier
// returns a bare object for a single symbol and an array for several;
// both shapes normalize to a slice here.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	q := url.Values{"symbols": {strings.Join(symbols, ",")}, "greeks": {"false"}}
	resp, err := c.request(ctx, "GET", "/markets/quotes?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire struct {
		Quotes struct {
			Quote json.RawMessage `json:"quote"`
		} `json:"quotes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode quotes: %w", err)
	}

	var list []wireQuote
	if err := json.Unmarshal(wire.Quotes.Quote, &list); err != nil {
		var single wireQuote
		if err := json.Unmarshal(wire.Quotes.Quote, &single); err != nil {
			return nil, fmt.Errorf("decode quote entry: %w", err)
		}
		list = []wireQuote{single}
	}

	out := make([]domain.Quote, len(list))
	for i, w := range list {
		out[i] = w.normalize()
	}
	return out, nil
}

type wireQuote struct {
	Symbol           string  `json:"symbol"`
	Last             float64 `json:"last"`
	Bid              float64 `json:"bid"`
	Ask              float64 `json:"ask"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Open             float64 `json:"open"`
	Close            float64 `json:"close"`
	Volume           int64   `json:"volume"`
	Change           float64 `json:"change"`
	ChangePercentage float64 `json:"change_percentage"`
	Type             string  `json:"type"`
}

func (w wireQuote) normalize() domain.Quote {
	return domain.Quote{
		Symbol: w.Symbol,
		Price:  w.Last,
		Volume: w.Volume,
		Bid:    w.Bid,
		Ask:    w.Ask,
	}
}

// GetOptionChain fetches the option chain for a symbol/expiration,
// optionally filtered to calls or puts.
func (c *Client) GetOptionChain(ctx context.Context, symbol, expiry string, side domain.OptionType) ([]domain.Contract, error) {
	q := url.Values{"symbol": {symbol}, "expiration": {expiry}, "greeks": {"true"}}
	if side != "" {
		q.Set("option_type", strings.ToLower(string(side)))
	}
	resp, err := c.request(ctx, "GET", "/markets/options/chains?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire struct {
		Options struct {
			Option json.RawMessage `json:"option"`
		} `json:"options"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode option chain: %w", err)
	}

	var list []wireOption
	if err := json.Unmarshal(wire.Options.Option, &list); err != nil {
		var single wireOption
		if err := json.Unmarshal(wire.Options.Option, &single); err != nil {
			return nil, fmt.Errorf("decode option entry: %w", err)
		}
		list = []wireOption{single}
	}

	out := make([]domain.Contract, len(list))
	for i, w := range list {
		out[i] = w.normalize()
	}
	return out, nil
}

type wireOption struct {
	Symbol         string  `json:"symbol"`
	Underlying     string  `json:"underlying"`
	Strike         float64 `json:"strike"`
	OptionType     string  `json:"option_type"`
	ExpirationDate string  `json:"expiration_date"`
	Last           float64 `json:"last"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"open_interest"`
	Greeks         *struct {
		Delta  float64 `json:"delta"`
		Gamma  float64 `json:"gamma"`
		Theta  float64 `json:"theta"`
		Vega   float64 `json:"vega"`
		Rho    float64 `json:"rho"`
		MidIV  float64 `json:"mid_iv"`
		SmvVol float64 `json:"smv_vol"`
	} `json:"greeks"`
}

func (w wireOption) normalize() domain.Contract {
	side := domain.Call
	if strings.EqualFold(w.OptionType, "put") {
		side = domain.Put
	}
	var greeks domain.Greeks
	iv := 0.0
	if w.Greeks != nil {
		greeks = domain.Greeks{Delta: w.Greeks.Delta, Gamma: w.Greeks.Gamma, Theta: w.Greeks.Theta, Vega: w.Greeks.Vega, Rho: w.Greeks.Rho}
		iv = w.Greeks.MidIV
		if iv == 0 {
			iv = w.Greeks.SmvVol
		}
	}
	expiry, _ := time.Parse("2006-01-02", w.ExpirationDate)
	daysToExpiry := int(time.Until(expiry).Hours() / 24)

	return domain.Contract{
		PutCall:           side,
		Symbol:            w.Symbol,
		Bid:               w.Bid,
		Ask:               w.Ask,
		Last:               w.Last,
		TotalVolume:       w.Volume,
		OpenInterest:      w.OpenInterest,
		VolatilityPercent: iv * 100,
		Greeks:            greeks,
		StrikePrice:       w.Strike,
		ExpirationDate:    expiry,
		DaysToExpiration:  daysToExpiry,
	}
}

// GetOptionQuote fetches one option contract's bid/ask, volume, open
// interest and greeks, plus the underlying's current price, and derives a
// single Mark: the Black-Scholes theoretical value when that comes out
// positive, falling back to the bid/ask midpoint, then to zero. Put
// deltas are forced negative regardless of the sign the broker reports,
// since greeks come back inconsistently signed across Tradier-shaped
// feeds depending on provider.
func (c *Client) GetOptionQuote(ctx context.Context, ticker string, strike float64, expiry time.Time, optionType domain.OptionType) (domain.OptionQuote, error) {
	symbol := BuildOCCSymbol(ticker, expiry, optionType, strike)
	q := url.Values{"symbols": {symbol}, "greeks": {"true"}}
	resp, err := c.request(ctx, "GET", "/markets/quotes?"+q.Encode(), nil)
	if err != nil {
		return domain.OptionQuote{}, err
	}
	defer resp.Body.Close()

	var wire struct {
		Quotes struct {
			Quote json.RawMessage `json:"quote"`
		} `json:"quotes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return domain.OptionQuote{}, fmt.Errorf("decode option quote: %w", err)
	}

	w, err := decodeOneOptionQuote(wire.Quotes.Quote)
	if err != nil {
		return domain.OptionQuote{}, err
	}

	underlying := 0.0
	if underlyingQuotes, err := c.GetQuotes(ctx, []string{ticker}); err == nil && len(underlyingQuotes) > 0 {
		underlying = underlyingQuotes[0].Price
	}

	greeks := domain.Greeks{}
	iv := 0.0
	if w.Greeks != nil {
		greeks = domain.Greeks{Delta: w.Greeks.Delta, Gamma: w.Greeks.Gamma, Theta: w.Greeks.Theta, Vega: w.Greeks.Vega, Rho: w.Greeks.Rho}
		iv = w.Greeks.MidIV
		if iv == 0 {
			iv = w.Greeks.SmvVol
		}
	}
	if optionType == domain.Put && greeks.Delta > 0 {
		greeks.Delta = -greeks.Delta
	}

	mark := 0.0
	if underlying > 0 && iv > 0 {
		yearsToExpiry := time.Until(expiry).Hours() / 24 / 365
		var theo options.BSGreeks
		if optionType == domain.Put {
			theo = options.PutGreeks(underlying, strike, yearsToExpiry, iv, options.RiskFreeRate)
		} else {
			theo = options.CallGreeks(underlying, strike, yearsToExpiry, iv, options.RiskFreeRate)
		}
		if theo.Price > 0 {
			mark = theo.Price
		}
	}
	if mark <= 0 {
		if mid := (w.Bid + w.Ask) / 2; mid > 0 {
			mark = mid
		}
	}

	return domain.OptionQuote{
		Bid:          w.Bid,
		Ask:          w.Ask,
		Mark:         mark,
		Underlying:   underlying,
		Volume:       w.Volume,
		OpenInterest: w.OpenInterest,
		Greeks:       greeks,
		IV:           iv,
	}, nil
}

type wireOptionQuote struct {
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Volume       int64   `json:"volume"`
	OpenInterest int64   `json:"open_interest"`
	Greeks       *struct {
		Delta  float64 `json:"delta"`
		Gamma  float64 `json:"gamma"`
		Theta  float64 `json:"theta"`
		Vega   float64 `json:"vega"`
		Rho    float64 `json:"rho"`
		MidIV  float64 `json:"mid_iv"`
		SmvVol float64 `json:"smv_vol"`
	} `json:"greeks"`
}

// decodeOneOptionQuote absorbs the same dict-vs-list quirk GetQuotes does:
// Tradier returns a bare object for one symbol and an array for several.
func decodeOneOptionQuote(raw json.RawMessage) (wireOptionQuote, error) {
	var single wireOptionQuote
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, nil
	}
	var list []wireOptionQuote
	if err := json.Unmarshal(raw, &list); err != nil {
		return wireOptionQuote{}, fmt.Errorf("decode option quote entry: %w", err)
	}
	if len(list) == 0 {
		return wireOptionQuote{}, fmt.Errorf("decode option quote entry: empty quote list")
	}
	return list[0], nil
}

// GetOptionExpirations fetches the available expiration dates for a
// symbol's option chain.
func (c *Client) GetOptionExpirations(ctx context.Context, symbol string) ([]string, error) {
	q := url.Values{"symbol": {symbol}, "includeAllRoots": {"true"}, "strikes": {"false"}}
	resp, err := c.request(ctx, "GET", "/markets/options/expirations?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire struct {
		Expirations struct {
			Date json.RawMessage `json:"date"`
		} `json:"expirations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode expirations: %w", err)
	}

	var dates []string
	if err := json.Unmarshal(wire.Expirations.Date, &dates); err == nil {
		return dates, nil
	}
	var single string
	if err := json.Unmarshal(wire.Expirations.Date, &single); err != nil {
		return nil, fmt.Errorf("decode expiration entry: %w", err)
	}
	return []string{single}, nil
}
