package broker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Balance is the normalized account balance/buying-power shape. The
// broker nests option/stock buying power differently for margin vs cash
// accounts; both are folded into one flat field here.
type Balance struct {
	TotalEquity        float64
	TotalCash           float64
	MarketValue         float64
	OpenPnL             float64
	ClosePnL            float64
	OptionBuyingPower   float64
	StockBuyingPower    float64
	AccountType         string
	PendingOrdersCount  int
}

// Position is one open broker position.
type Position struct {
	Symbol        string
	Quantity      float64
	CostBasis     float64
	CurrentValue  float64
	PnL           float64
	DateAcquired  string
}

// ConnectionStatus reports whether the account credentials authenticate
// successfully, without raising for the common auth-failure case.
type ConnectionStatus struct {
	Connected   bool
	AccountID   string
	Name        string
	Environment Environment
	Error       string
}

// GetBalance fetches account equity, cash and buying power.
func (c *Client) GetBalance(ctx context.Context) (Balance, error) {
	resp, err := c.request(ctx, "GET", fmt.Sprintf("/accounts/%s/balances", c.accountID), nil)
	if err != nil {
		return Balance{}, err
	}
	defer resp.Body.Close()

	var wire struct {
		Balances struct {
			TotalEquity float64 `json:"total_equity"`
			TotalCash   float64 `json:"total_cash"`
			MarketValue float64 `json:"market_value"`
			OpenPL      float64 `json:"open_pl"`
			ClosePL     float64 `json:"close_pl"`
			AccountType string  `json:"account_type"`
			PendingOrdersCount int `json:"pending_orders_count"`
			Margin struct {
				OptionBuyingPower float64 `json:"option_buying_power"`
				StockBuyingPower  float64 `json:"stock_buying_power"`
			} `json:"margin"`
			Cash struct {
				OptionBuyingPower float64 `json:"option_buying_power"`
				StockBuyingPower  float64 `json:"stock_buying_power"`
			} `json:"cash"`
		} `json:"balances"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return Balance{}, fmt.Errorf("decode balances: %w", err)
	}

	optionBP := wire.Balances.Margin.OptionBuyingPower
	if optionBP == 0 {
		optionBP = wire.Balances.Cash.OptionBuyingPower
	}
	stockBP := wire.Balances.Margin.StockBuyingPower
	if stockBP == 0 {
		stockBP = wire.Balances.Cash.StockBuyingPower
	}

	return Balance{
		TotalEquity:        wire.Balances.TotalEquity,
		TotalCash:          wire.Balances.TotalCash,
		MarketValue:        wire.Balances.MarketValue,
		OpenPnL:            wire.Balances.OpenPL,
		ClosePnL:           wire.Balances.ClosePL,
		OptionBuyingPower:  optionBP,
		StockBuyingPower:   stockBP,
		AccountType:        wire.Balances.AccountType,
		PendingOrdersCount: wire.Balances.PendingOrdersCount,
	}, nil
}

// GetPositions lists open positions. An absent position list is reported
// as the literal string "null" rather than an empty array or omitted
// field, which is normalized to nil here.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	resp, err := c.request(ctx, "GET", fmt.Sprintf("/accounts/%s/positions", c.accountID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw struct {
		Positions json.RawMessage `json:"positions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	var asString string
	if err := json.Unmarshal(raw.Positions, &asString); err == nil {
		return nil, nil
	}

	var wrapper struct {
		Position json.RawMessage `json:"position"`
	}
	if err := json.Unmarshal(raw.Positions, &wrapper); err != nil {
		return nil, fmt.Errorf("decode positions wrapper: %w", err)
	}
	if len(wrapper.Position) == 0 {
		return nil, nil
	}

	type wirePosition struct {
		Symbol       string  `json:"symbol"`
		Quantity     float64 `json:"quantity"`
		CostBasis    float64 `json:"cost_basis"`
		MarketValue  float64 `json:"market_value"`
		DateAcquired string  `json:"date_acquired"`
	}
	var list []wirePosition
	if err := json.Unmarshal(wrapper.Position, &list); err != nil {
		var single wirePosition
		if err := json.Unmarshal(wrapper.Position, &single); err != nil {
			return nil, fmt.Errorf("decode position entry: %w", err)
		}
		list = []wirePosition{single}
	}

	out := make([]Position, len(list))
	for i, p := range list {
		out[i] = Position{
			Symbol:       p.Symbol,
			Quantity:     p.Quantity,
			CostBasis:    p.CostBasis,
			CurrentValue: p.MarketValue,
			PnL:          p.MarketValue - p.CostBasis,
			DateAcquired: p.DateAcquired,
		}
	}
	return out, nil
}

// TestConnection verifies the account credentials authenticate, folding
// an auth failure into a negative ConnectionStatus instead of an error so
// callers (optraderctl check-connectivity) can report it
// without special-casing errs.KindAuthError.
func (c *Client) TestConnection(ctx context.Context) ConnectionStatus {
	resp, err := c.request(ctx, "GET", "/user/profile", nil)
	if err != nil {
		return ConnectionStatus{Connected: false, Environment: c.env, Error: err.Error()}
	}
	defer resp.Body.Close()

	var wire struct {
		Profile struct {
			Name    string          `json:"name"`
			Account json.RawMessage `json:"account"`
		} `json:"profile"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return ConnectionStatus{Connected: false, Environment: c.env, Error: err.Error()}
	}

	type wireAccount struct {
		AccountNumber string `json:"account_number"`
	}
	var accountID string
	var list []wireAccount
	if err := json.Unmarshal(wire.Profile.Account, &list); err == nil && len(list) > 0 {
		for _, a := range list {
			if a.AccountNumber == c.accountID {
				accountID = a.AccountNumber
				break
			}
		}
		if accountID == "" {
			accountID = list[0].AccountNumber
		}
	} else {
		var single wireAccount
		if err := json.Unmarshal(wire.Profile.Account, &single); err == nil {
			accountID = single.AccountNumber
		}
	}
	if accountID == "" {
		accountID = c.accountID
	}

	return ConnectionStatus{
		Connected:   true,
		AccountID:   accountID,
		Name:        wire.Profile.Name,
		Environment: c.env,
	}
}
