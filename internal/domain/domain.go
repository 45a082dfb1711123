// Package domain holds the value types shared across the scanner,
// lifecycle engine and broker gateway: option side, greeks, quotes and
// the standardized option-contract shape adapters normalize into.
package domain

import "time"

// OptionType is the side of an option contract.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// Direction is BUY or SELL of the option itself (not the underlying).
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Strategy is the scan variant requested by the caller.
type Strategy string

const (
	StrategyLEAP   Strategy = "LEAP"   // long-dated
	StrategyWeekly Strategy = "WEEKLY"
	StrategySameDay Strategy = "SAME_DAY"
)

// VIXRegime buckets the volatility regime, driving sizing and exit-plan
// adjustments.
type VIXRegime string

const (
	RegimeNormal   VIXRegime = "NORMAL"
	RegimeElevated VIXRegime = "ELEVATED"
	RegimeCrisis   VIXRegime = "CRISIS"
)

// Greeks bundles the five standard option sensitivities. Vega/theta are
// expressed in the provider's native units unless noted otherwise at the
// call site (the options analyzer documents daily vs. annual theta).
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// Quote is the normalized underlying-security quote shape.
type Quote struct {
	Symbol string
	Price  float64
	Volume int64
	Bid    float64
	Ask    float64
}

// Contract is the normalized option contract shape: the
// per-side, per-strike record adapters produce from any upstream wire
// format.
type Contract struct {
	PutCall           OptionType
	Symbol            string
	Description       string
	Bid               float64
	Ask               float64
	Last              float64
	Mark              float64
	TotalVolume       int64
	OpenInterest      int64
	VolatilityPercent float64 // implied volatility, expressed as a percent (e.g. 35.0 = 35%)
	Greeks            Greeks
	StrikePrice       float64
	ExpirationDate    time.Time
	DaysToExpiration  int
}

// Chain is the standardized nested mapping:
// {expiry-key -> {strike -> [contract, ...]}}, split by side.
type Chain struct {
	Calls map[string]map[float64][]Contract
	Puts  map[string]map[float64][]Contract
}

// NewChain builds an empty Chain ready for population.
func NewChain() Chain {
	return Chain{
		Calls: make(map[string]map[float64][]Contract),
		Puts:  make(map[string]map[float64][]Contract),
	}
}

func (c *Chain) add(side OptionType, expiryKey string, strike float64, contract Contract) {
	m := c.Calls
	if side == Put {
		m = c.Puts
	}
	if _, ok := m[expiryKey]; !ok {
		m[expiryKey] = make(map[float64][]Contract)
	}
	m[expiryKey][strike] = append(m[expiryKey][strike], contract)
}

// Add inserts a contract into the chain under its side/expiry/strike.
func (c *Chain) Add(contract Contract) {
	expiryKey := contract.ExpirationDate.Format("2006-01-02")
	c.add(contract.PutCall, expiryKey, contract.StrikePrice, contract)
}

// Contracts flattens the chain for a given side into a slice.
func (c *Chain) Contracts(side OptionType) []Contract {
	m := c.Calls
	if side == Put {
		m = c.Puts
	}
	var out []Contract
	for _, byStrike := range m {
		for _, contracts := range byStrike {
			out = append(out, contracts...)
		}
	}
	return out
}

// OptionQuote is the dedicated snapshot shape used by
// post-fill confirmation and the scheduler's bookend/poll jobs.
type OptionQuote struct {
	Bid          float64
	Ask          float64
	Mark         float64
	Underlying   float64
	Volume       int64
	OpenInterest int64
	Greeks       Greeks
	IV           float64
}
